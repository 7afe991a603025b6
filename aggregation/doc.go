// Package aggregation computes aggregate and reward outputs over the records
// providers submitted to the enclave.
//
// A Strategy serves one data type. The Registry maps the envelope schema name
// to its strategy; an unknown name fails with ErrUnsupportedDataType before
// anything is computed.
//
// PivotStrategy evaluates a Domain: a pivot hierarchy, one statistic per
// output field and the fields behind the reward dimensions. Group statistics
// produce a pivot table keyed by group value:
//
//	averagePrice: {pivotId: "model", data: {"model-s": 81000, "leaf": 31000}}
//
// Ratio fields split the records on a categorical flag:
//
//	premium = value(flagged) / value(baseline) - adjustment
//	share   = value(flagged) / (value(flagged) + value(baseline)) - adjustment
//
// Rewards compare a provider's records with the whole population:
//
//	amountProvided  = |target| / |all|
//	completeness    = distinct completeness tuples, target / all
//	uniqueness      = distinct uniqueness values, target / all
//	updateFrequency = records dated inside the trailing window, target / all
//	qualityScore    = mean of the four; rewards = qualityScore * 100
//
// Every ratio with an empty or zero denominator fails with ErrDivisionByZero
// instead of producing a non-finite value.
//
// Domains can be loaded from YAML with ParseDomains:
//
//	- name: fleetSchema
//	  pivot: [region, model]
//	  outputs:
//	    - {name: averageRange, stat: mean, group_by: [model], field: range_km}
//	  reward:
//	    completeness: [model, region]
//	    uniqueness: model
//	    date_field: date
package aggregation
