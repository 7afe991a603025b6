package aggregation

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// Statistic selects how an output field is computed.
type Statistic string

const (
	StatMean     Statistic = "mean"
	StatSum      Statistic = "sum"
	StatDistinct Statistic = "distinct"
	StatCount    Statistic = "count"
	StatPremium  Statistic = "premium"
	StatShare    Statistic = "share"
)

func (s Statistic) grouped() bool {
	switch s {
	case StatMean, StatSum, StatDistinct, StatCount:
		return true
	}
	return false
}

func (s Statistic) ratio() bool {
	return s == StatPremium || s == StatShare
}

// Domain describes how one data type is aggregated and rewarded.
type Domain struct {
	// Name is the data-type tag, the envelope schema name.
	Name string `yaml:"name"`

	// Pivot is the ordered hierarchy of grouping keys.
	Pivot []string `yaml:"pivot"`

	Outputs []OutputField `yaml:"outputs"`
	Reward  RewardSpec    `yaml:"reward"`
}

// OutputField computes one field of the aggregate output.
//
// Group statistics (mean, sum, distinct, count) produce a pivot table over
// GroupBy. Ratios (premium, share) split records on Flag and compare the
// RatioOf statistic of Field between the Flagged and Baseline values.
type OutputField struct {
	Name    string    `yaml:"name"`
	Stat    Statistic `yaml:"stat"`
	GroupBy []string  `yaml:"group_by,omitempty"`
	Field   string    `yaml:"field,omitempty"`

	Flag       string    `yaml:"flag,omitempty"`
	Flagged    string    `yaml:"flagged,omitempty"`
	Baseline   string    `yaml:"baseline,omitempty"`
	RatioOf    Statistic `yaml:"ratio_of,omitempty"`
	Adjustment float64   `yaml:"adjustment,omitempty"`
}

// RewardSpec names the fields behind the reward dimensions.
type RewardSpec struct {
	// Completeness counts distinct combinations of these fields.
	Completeness []string `yaml:"completeness"`
	// Uniqueness counts distinct values of this field.
	Uniqueness string `yaml:"uniqueness"`
	// DateField is compared against the trailing update window.
	DateField string `yaml:"date_field"`
}

// Validate checks that every output can be evaluated.
func (d *Domain) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidDomain)
	}
	if len(d.Pivot) == 0 {
		return fmt.Errorf("%w: %s: empty pivot", ErrInvalidDomain, d.Name)
	}

	seen := make(map[string]bool, len(d.Outputs))
	for _, out := range d.Outputs {
		if out.Name == "" {
			return fmt.Errorf("%w: %s: unnamed output", ErrInvalidDomain, d.Name)
		}
		if seen[out.Name] {
			return fmt.Errorf("%w: %s: duplicate output %s", ErrInvalidDomain, d.Name, out.Name)
		}
		seen[out.Name] = true

		switch {
		case out.Stat.grouped():
			if len(out.GroupBy) == 0 {
				return fmt.Errorf("%w: %s.%s: group_by required", ErrInvalidDomain, d.Name, out.Name)
			}
			for _, g := range out.GroupBy {
				if !slices.Contains(d.Pivot, g) {
					return fmt.Errorf("%w: %s.%s: %s is not a pivot field", ErrInvalidDomain, d.Name, out.Name, g)
				}
			}
			if out.Stat != StatCount && out.Field == "" {
				return fmt.Errorf("%w: %s.%s: field required", ErrInvalidDomain, d.Name, out.Name)
			}
		case out.Stat.ratio():
			if out.Flag == "" || out.Field == "" || out.Flagged == out.Baseline {
				return fmt.Errorf("%w: %s.%s: flag, field and distinct subsets required", ErrInvalidDomain, d.Name, out.Name)
			}
			if out.RatioOf != StatMean && out.RatioOf != StatSum {
				return fmt.Errorf("%w: %s.%s: ratio_of must be mean or sum", ErrInvalidDomain, d.Name, out.Name)
			}
		default:
			return fmt.Errorf("%w: %s.%s: unknown statistic %q", ErrInvalidDomain, d.Name, out.Name, out.Stat)
		}
	}

	r := d.Reward
	if len(r.Completeness) == 0 || r.Uniqueness == "" || r.DateField == "" {
		return fmt.Errorf("%w: %s: reward needs completeness, uniqueness and date_field", ErrInvalidDomain, d.Name)
	}
	return nil
}

// ParseDomains reads a YAML list of domain definitions and validates each.
func ParseDomains(data []byte) ([]Domain, error) {
	var domains []Domain
	if err := yaml.Unmarshal(data, &domains); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDomain, err)
	}
	for i := range domains {
		if err := domains[i].Validate(); err != nil {
			return nil, err
		}
	}
	return domains, nil
}
