package aggregation

import (
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/chhavsingh/180protocol/schema"
)

// keySeparator joins the values of a multi-field group key.
const keySeparator = "/"

// GroupBy partitions records by the joined values of fields.
func GroupBy(records []schema.Record, fields ...string) (map[string][]schema.Record, error) {
	groups := make(map[string][]schema.Record)
	for _, rec := range records {
		key, err := groupKey(rec, fields)
		if err != nil {
			return nil, err
		}
		groups[key] = append(groups[key], rec)
	}
	return groups, nil
}

func groupKey(rec schema.Record, fields []string) (string, error) {
	parts := make([]string, len(fields))
	for i, f := range fields {
		v, err := rec.Key(f)
		if err != nil {
			return "", err
		}
		parts[i] = v
	}
	return strings.Join(parts, keySeparator), nil
}

// Sum adds a numeric field over records.
func Sum(records []schema.Record, field string) (float64, error) {
	var total float64
	for _, rec := range records {
		v, err := rec.Float(field)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}

// Mean is the arithmetic mean of a numeric field. An empty set has no mean.
func Mean(records []schema.Record, field string) (float64, error) {
	total, err := Sum(records, field)
	if err != nil {
		return 0, err
	}
	return Ratio(total, float64(len(records)))
}

// DistinctCount counts the distinct value combinations of fields.
func DistinctCount(records []schema.Record, fields ...string) (int, error) {
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, rec := range records {
		key, err := groupKey(rec, fields)
		if err != nil {
			return 0, err
		}
		seen.Add(key)
	}
	return seen.Cardinality(), nil
}

// CountSince counts records whose date field falls strictly after since.
func CountSince(records []schema.Record, field string, since time.Time) (int, error) {
	count := 0
	for _, rec := range records {
		d, err := rec.Time(field)
		if err != nil {
			return 0, err
		}
		if d.After(since) {
			count++
		}
	}
	return count, nil
}

// Ratio divides num by den, refusing an empty denominator.
func Ratio(num, den float64) (float64, error) {
	if den == 0 {
		return 0, fmt.Errorf("%w: %v / 0", ErrDivisionByZero, num)
	}
	return num / den, nil
}

// Compute evaluates stat over one group.
func Compute(stat Statistic, records []schema.Record, field string) (float64, error) {
	switch stat {
	case StatMean:
		return Mean(records, field)
	case StatSum:
		return Sum(records, field)
	case StatDistinct:
		n, err := DistinctCount(records, field)
		return float64(n), err
	case StatCount:
		return float64(len(records)), nil
	}
	return 0, fmt.Errorf("%w: statistic %q is not a group statistic", ErrInvalidDomain, stat)
}

// Pivot evaluates stat over every group of records partitioned by groupBy.
func Pivot(records []schema.Record, groupBy []string, stat Statistic, field string) (schema.PivotTable, error) {
	groups, err := GroupBy(records, groupBy...)
	if err != nil {
		return schema.PivotTable{}, err
	}

	table := schema.PivotTable{
		PivotID: strings.Join(groupBy, keySeparator),
		Data:    make(map[string]float64, len(groups)),
	}
	for key, group := range groups {
		v, err := Compute(stat, group, field)
		if err != nil {
			return schema.PivotTable{}, fmt.Errorf("group %q: %w", key, err)
		}
		table.Data[key] = v
	}
	return table, nil
}

// FlagRatio compares the flagged and baseline subsets of records, split on
// the categorical flag field.
//
//	premium: value(flagged) / value(baseline) - adjustment
//	share:   value(flagged) / (value(flagged) + value(baseline)) - adjustment
//
// A missing subset counts as empty and fails the mean.
func FlagRatio(records []schema.Record, f OutputField) (float64, error) {
	groups, err := GroupBy(records, f.Flag)
	if err != nil {
		return 0, err
	}

	flagged, err := Compute(f.RatioOf, groups[f.Flagged], f.Field)
	if err != nil {
		return 0, fmt.Errorf("flagged subset %q: %w", f.Flagged, err)
	}
	baseline, err := Compute(f.RatioOf, groups[f.Baseline], f.Field)
	if err != nil {
		return 0, fmt.Errorf("baseline subset %q: %w", f.Baseline, err)
	}

	var r float64
	switch f.Stat {
	case StatPremium:
		r, err = Ratio(flagged, baseline)
	case StatShare:
		r, err = Ratio(flagged, flagged+baseline)
	default:
		return 0, fmt.Errorf("%w: %q is not a ratio", ErrInvalidDomain, f.Stat)
	}
	if err != nil {
		return 0, err
	}
	return r - f.Adjustment, nil
}
