/*
Package testutil provides fixtures for testing the aggregation enclave and its
host.

# Envelopes

SalesEnvelope and DemandEnvelope are complete envelope schemas for the two
built-in data types.

# Records

Generators build deterministic input records. Dates are relative to Now, the
fixed clock tests inject into the update window:

	records := testutil.GenerateSalesRecords(10,
	    testutil.WithModels("model-s", "leaf"),
	    testutil.WithCountries("DE"),
	)

# Parties and Mail

A Coalition holds providers, a consumer and a provenance auditor, each with
its own channel. Mail builders frame schema, identity and client mail the
way a real party would:

	coalition, _ := testutil.NewCoalition(2)
	mail, _ := testutil.IdentityMail(1, set, coalition.Parties()...)
	mail, _ = testutil.ProviderMail(2, coalition.Providers[0], enclavePub, set, records)
*/
package testutil
