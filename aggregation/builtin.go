package aggregation

// Built-in data-type tags.
const (
	DataTypeDemand = "testSchema1"
	DataTypeSales  = "testSchema2"
)

// BuiltinDomains returns the domains served without configuration.
func BuiltinDomains() []Domain {
	return []Domain{DemandDomain(), SalesDomain()}
}

// DemandDomain aggregates vehicle demand records pivoted by month, brand,
// type and model.
func DemandDomain() Domain {
	return Domain{
		Name:  DataTypeDemand,
		Pivot: []string{"month", "brand", "type", "model"},
		Outputs: []OutputField{
			{Name: "averagePrice", Stat: StatMean, GroupBy: []string{"model"}, Field: "average_price"},
			{Name: "unitsSold", Stat: StatSum, GroupBy: []string{"model"}, Field: "units"},
			{Name: "totalSales", Stat: StatSum, GroupBy: []string{"model"}, Field: "total_sales"},
			{Name: "evPremium", Stat: StatPremium, Flag: "ev", Flagged: "EV", Baseline: "", RatioOf: StatMean, Field: "average_price", Adjustment: 1},
			{Name: "evMarketShare", Stat: StatShare, Flag: "ev", Flagged: "EV", Baseline: "", RatioOf: StatSum, Field: "total_sales"},
		},
		Reward: RewardSpec{
			Completeness: []string{"model", "country"},
			Uniqueness:   "type",
			DateField:    "date",
		},
	}
}

// SalesDomain is the compact five-field sales domain.
func SalesDomain() Domain {
	return Domain{
		Name:  DataTypeSales,
		Pivot: []string{"country", "ev", "model"},
		Outputs: []OutputField{
			{Name: "averagePrice", Stat: StatMean, GroupBy: []string{"model"}, Field: "price"},
			{Name: "totalSales", Stat: StatSum, GroupBy: []string{"model"}, Field: "price"},
			{Name: "marketCoverage", Stat: StatDistinct, GroupBy: []string{"model"}, Field: "country"},
			{Name: "evPremium", Stat: StatPremium, Flag: "ev", Flagged: "EV", Baseline: "", RatioOf: StatMean, Field: "price", Adjustment: 1},
			{Name: "evMarketShare", Stat: StatShare, Flag: "ev", Flagged: "EV", Baseline: "", RatioOf: StatSum, Field: "price"},
		},
		Reward: RewardSpec{
			Completeness: []string{"model", "country"},
			Uniqueness:   "model",
			DateField:    "date",
		},
	}
}
