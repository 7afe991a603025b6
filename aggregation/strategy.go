package aggregation

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hamba/avro/v2"

	"github.com/chhavsingh/180protocol/schema"
)

// Reward record field names.
const (
	RewardAmountProvided  = "amountProvided"
	RewardCompleteness    = "completeness"
	RewardUniqueness      = "uniqueness"
	RewardUpdateFrequency = "updateFrequency"
	RewardQualityScore    = "qualityScore"
	RewardRewards         = "rewards"
	RewardDataType        = "dataType"
)

// Strategy computes the outputs of one data type.
type Strategy interface {
	// Aggregate builds one aggregate-output record from the union of all
	// provider records.
	Aggregate(records []schema.Record, out *avro.RecordSchema) (schema.Record, error)

	// Reward builds the reward record of one provider relative to all records.
	Reward(target, all []schema.Record, out *avro.RecordSchema) (schema.Record, error)
}

// Registry maps data-type tags to strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds or replaces the strategy for dataType.
func (r *Registry) Register(dataType string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[dataType] = s
}

// Lookup returns the strategy serving dataType.
func (r *Registry) Lookup(dataType string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[dataType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDataType, dataType)
	}
	return s, nil
}

// DataTypes lists the registered tags in sorted order.
func (r *Registry) DataTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.strategies))
	for tag := range r.strategies {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Options configures strategies built from domains.
type Options struct {
	// Now is the clock for the update window. Defaults to time.Now.
	Now func() time.Time
	// WindowMonths is the trailing update window. Defaults to 3.
	WindowMonths int
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.WindowMonths <= 0 {
		o.WindowMonths = 3
	}
	return o
}

// RegisterDomains validates domains and registers a PivotStrategy for each.
func (r *Registry) RegisterDomains(opts Options, domains ...Domain) error {
	for _, d := range domains {
		s, err := NewPivotStrategy(d, opts)
		if err != nil {
			return err
		}
		r.Register(d.Name, s)
	}
	return nil
}

// DefaultRegistry returns a registry serving the built-in domains.
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry()
	if err := r.RegisterDomains(opts, BuiltinDomains()...); err != nil {
		panic(err)
	}
	return r
}

// PivotStrategy evaluates a Domain.
type PivotStrategy struct {
	domain Domain
	opts   Options
}

// NewPivotStrategy validates d and returns its strategy.
func NewPivotStrategy(d Domain, opts Options) (*PivotStrategy, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &PivotStrategy{domain: d, opts: opts.withDefaults()}, nil
}

// Domain returns the definition behind the strategy.
func (p *PivotStrategy) Domain() Domain {
	return p.domain
}

// Aggregate computes only the fields out declares. A declared field the
// domain does not define is an error.
func (p *PivotStrategy) Aggregate(records []schema.Record, out *avro.RecordSchema) (schema.Record, error) {
	values := make(schema.Record, len(out.Fields()))
	for _, f := range out.Fields() {
		idx := slices.IndexFunc(p.domain.Outputs, func(o OutputField) bool { return o.Name == f.Name() })
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s defines no output %s", schema.ErrMissingField, p.domain.Name, f.Name())
		}

		v, err := p.evaluate(records, p.domain.Outputs[idx])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name(), err)
		}
		values[f.Name()] = v
	}

	return schema.ConformRecord(values, out)
}

func (p *PivotStrategy) evaluate(records []schema.Record, f OutputField) (any, error) {
	if f.Stat.ratio() {
		return FlagRatio(records, f)
	}
	return Pivot(records, f.GroupBy, f.Stat, f.Field)
}

// Reward computes the four quality dimensions of target against all.
func (p *PivotStrategy) Reward(target, all []schema.Record, out *avro.RecordSchema) (schema.Record, error) {
	spec := p.domain.Reward

	amount, err := Ratio(float64(len(target)), float64(len(all)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", RewardAmountProvided, err)
	}

	completeness, err := distinctRatio(target, all, spec.Completeness...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", RewardCompleteness, err)
	}

	uniqueness, err := distinctRatio(target, all, spec.Uniqueness)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", RewardUniqueness, err)
	}

	since := p.windowStart()
	recentTarget, err := CountSince(target, spec.DateField, since)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", RewardUpdateFrequency, err)
	}
	recentAll, err := CountSince(all, spec.DateField, since)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", RewardUpdateFrequency, err)
	}
	frequency, err := Ratio(float64(recentTarget), float64(recentAll))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", RewardUpdateFrequency, err)
	}

	quality := (amount + completeness + uniqueness + frequency) / 4

	return schema.ConformRecord(schema.Record{
		RewardAmountProvided:  amount,
		RewardCompleteness:    completeness,
		RewardUniqueness:      uniqueness,
		RewardUpdateFrequency: frequency,
		RewardQualityScore:    quality,
		RewardRewards:         quality * 100,
		RewardDataType:        p.domain.Name,
	}, out)
}

// windowStart is the start of the trailing update window, at day precision.
func (p *PivotStrategy) windowStart() time.Time {
	y, m, d := p.opts.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, -p.opts.WindowMonths, 0)
}

func distinctRatio(target, all []schema.Record, fields ...string) (float64, error) {
	t, err := DistinctCount(target, fields...)
	if err != nil {
		return 0, err
	}
	a, err := DistinctCount(all, fields...)
	if err != nil {
		return 0, err
	}
	return Ratio(float64(t), float64(a))
}
