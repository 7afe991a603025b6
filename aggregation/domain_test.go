package aggregation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuiltinDomainsAreValid(t *testing.T) {
	for _, d := range BuiltinDomains() {
		require.NoError(t, d.Validate(), d.Name)
	}
}

func TestDomain_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Domain)
	}{
		{"no name", func(d *Domain) { d.Name = "" }},
		{"no pivot", func(d *Domain) { d.Pivot = nil }},
		{"group by outside pivot", func(d *Domain) { d.Outputs[0].GroupBy = []string{"date"} }},
		{"unknown statistic", func(d *Domain) { d.Outputs[0].Stat = "median" }},
		{"duplicate output", func(d *Domain) { d.Outputs[1].Name = d.Outputs[0].Name }},
		{"ratio without flag", func(d *Domain) { d.Outputs[3].Flag = "" }},
		{"ratio of distinct", func(d *Domain) { d.Outputs[3].RatioOf = StatDistinct }},
		{"same subsets", func(d *Domain) { d.Outputs[3].Baseline = "EV" }},
		{"no reward date", func(d *Domain) { d.Reward.DateField = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := SalesDomain()
			tt.mutate(&d)
			require.ErrorIs(t, d.Validate(), ErrInvalidDomain)
		})
	}
}

func TestParseDomains(t *testing.T) {
	domains, err := ParseDomains([]byte(`
- name: fleetSchema
  pivot: [region, model]
  outputs:
    - {name: averageRange, stat: mean, group_by: [model], field: range_km}
    - {name: fleetSize, stat: count, group_by: [region]}
    - {name: evShare, stat: share, flag: ev, flagged: EV, baseline: "", ratio_of: sum, field: units}
  reward:
    completeness: [model, region]
    uniqueness: model
    date_field: date
`))
	require.NoError(t, err)
	require.Len(t, domains, 1)
	require.Equal(t, StatShare, domains[0].Outputs[2].Stat)

	registry := NewRegistry()
	require.NoError(t, registry.RegisterDomains(Options{}, domains...))
	_, err = registry.Lookup("fleetSchema")
	require.NoError(t, err)

	_, err = ParseDomains([]byte(`- name: broken`))
	require.ErrorIs(t, err, ErrInvalidDomain)

	_, err = ParseDomains([]byte(`{not: [a list`))
	require.ErrorIs(t, err, ErrInvalidDomain)
}
