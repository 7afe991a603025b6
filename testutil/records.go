package testutil

import (
	"fmt"
	"time"

	"github.com/chhavsingh/180protocol/schema"
)

// Now is the fixed clock used by tests that depend on the update window.
var Now = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

// FixedClock returns Now.
func FixedClock() time.Time {
	return Now
}

type recordConfig struct {
	models    []string
	countries []string
	date      time.Time
	basePrice float64
}

// RecordOption customizes generated records.
type RecordOption func(*recordConfig)

// WithModels sets the models records cycle through.
func WithModels(models ...string) RecordOption {
	return func(c *recordConfig) {
		c.models = models
	}
}

// WithCountries sets the countries records cycle through.
func WithCountries(countries ...string) RecordOption {
	return func(c *recordConfig) {
		c.countries = countries
	}
}

// WithDate sets the date of the first record; later records step back one day each.
func WithDate(date time.Time) RecordOption {
	return func(c *recordConfig) {
		c.date = date
	}
}

// WithBasePrice sets the lowest generated price.
func WithBasePrice(price float64) RecordOption {
	return func(c *recordConfig) {
		c.basePrice = price
	}
}

func newRecordConfig(options []RecordOption) *recordConfig {
	c := &recordConfig{
		models:    []string{"model-s", "leaf", "golf"},
		countries: []string{"DE", "FR"},
		date:      Now.AddDate(0, 0, -7),
		basePrice: 20000,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// evFlag alternates EV and conventional records.
func evFlag(i int) string {
	if i%2 == 0 {
		return "EV"
	}
	return ""
}

// GenerateSalesRecords returns n records of the sales input schema. Every
// record with an even index is an EV.
func GenerateSalesRecords(n int, options ...RecordOption) []schema.Record {
	c := newRecordConfig(options)

	records := make([]schema.Record, n)
	for i := range records {
		records[i] = schema.Record{
			"model":   c.models[i%len(c.models)],
			"country": c.countries[(i/len(c.models))%len(c.countries)],
			"ev":      evFlag(i),
			"price":   c.basePrice + 1000*float64(i%5),
			"date":    c.date.AddDate(0, 0, -(i % 30)).Format(schema.DateLayout),
		}
	}
	return records
}

// GenerateDemandRecords returns n records of the demand input schema.
func GenerateDemandRecords(n int, options ...RecordOption) []schema.Record {
	c := newRecordConfig(options)
	types := []string{"sedan", "suv", "hatchback"}

	records := make([]schema.Record, n)
	for i := range records {
		units := 10 + i%7
		price := float32(c.basePrice + 500*float64(i%4))
		date := c.date.AddDate(0, 0, -(i % 30))
		records[i] = schema.Record{
			"month":         date.Format("2006-01"),
			"brand":         fmt.Sprintf("brand-%d", i%2),
			"type":          types[i%len(types)],
			"model":         c.models[i%len(c.models)],
			"country":       c.countries[(i/len(c.models))%len(c.countries)],
			"ev":            evFlag(i),
			"units":         units,
			"average_price": price,
			"total_sales":   price * float32(units),
			"date":          date.Format(schema.DateLayout),
		}
	}
	return records
}
