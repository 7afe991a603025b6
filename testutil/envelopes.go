package testutil

// SalesEnvelope is the compact sales envelope: five input fields, five
// aggregate fields, a two-field provenance output and the identity record.
const SalesEnvelope = `{
  "type": "record",
  "name": "testSchema2",
  "namespace": "protocol180.sales",
  "fields": [
    {"name": "aggregateInput", "type": {"type": "record", "name": "SalesRecord", "fields": [
      {"name": "model", "type": "string"},
      {"name": "country", "type": "string"},
      {"name": "ev", "type": "string"},
      {"name": "price", "type": "double"},
      {"name": "date", "type": "string"}
    ]}},
    {"name": "aggregateOutput", "type": {"type": "record", "name": "SalesAggregate", "fields": [
      {"name": "averagePrice", "type": {"type": "record", "name": "PivotStat", "fields": [
        {"name": "pivotId", "type": "string"},
        {"name": "data", "type": {"type": "map", "values": "double"}}
      ]}},
      {"name": "totalSales", "type": "PivotStat"},
      {"name": "marketCoverage", "type": {"type": "record", "name": "PivotCount", "fields": [
        {"name": "pivotId", "type": "string"},
        {"name": "data", "type": {"type": "map", "values": "int"}}
      ]}},
      {"name": "evPremium", "type": "double"},
      {"name": "evMarketShare", "type": "double"}
    ]}},
    {"name": "provenanceOutput", "type": {"type": "record", "name": "ProviderReward", "fields": [
      {"name": "publicKey", "type": "string"},
      {"name": "rewards", "type": {"type": "record", "name": "Rewards", "fields": [
        {"name": "amountProvided", "type": "float"},
        {"name": "completeness", "type": "float"},
        {"name": "uniqueness", "type": "float"},
        {"name": "updateFrequency", "type": "float"},
        {"name": "qualityScore", "type": "float"},
        {"name": "rewards", "type": "float"},
        {"name": "dataType", "type": "string"}
      ]}}
    ]}},
    {"name": "identity", "type": {"type": "record", "name": "Identity", "fields": [
      {"name": "publicKey", "type": "string"},
      {"name": "clientType", "type": "string"}
    ]}}
  ]
}`

// DemandEnvelope is the ten-field vehicle demand envelope.
const DemandEnvelope = `{
  "type": "record",
  "name": "testSchema1",
  "namespace": "protocol180.demand",
  "fields": [
    {"name": "aggregateInput", "type": {"type": "record", "name": "DemandRecord", "fields": [
      {"name": "month", "type": "string"},
      {"name": "brand", "type": "string"},
      {"name": "type", "type": "string"},
      {"name": "model", "type": "string"},
      {"name": "country", "type": "string"},
      {"name": "ev", "type": "string"},
      {"name": "units", "type": "int"},
      {"name": "average_price", "type": "float"},
      {"name": "total_sales", "type": "float"},
      {"name": "date", "type": "string"}
    ]}},
    {"name": "aggregateOutput", "type": {"type": "record", "name": "DemandAggregate", "fields": [
      {"name": "averagePrice", "type": {"type": "record", "name": "PivotStat", "fields": [
        {"name": "pivotId", "type": "string"},
        {"name": "data", "type": {"type": "map", "values": "double"}}
      ]}},
      {"name": "unitsSold", "type": "PivotStat"},
      {"name": "totalSales", "type": "PivotStat"},
      {"name": "evPremium", "type": "double"},
      {"name": "evMarketShare", "type": "double"}
    ]}},
    {"name": "provenanceOutput", "type": {"type": "record", "name": "ProviderReward", "fields": [
      {"name": "publicKey", "type": "string"},
      {"name": "rewards", "type": {"type": "record", "name": "Rewards", "fields": [
        {"name": "amountProvided", "type": "float"},
        {"name": "completeness", "type": "float"},
        {"name": "uniqueness", "type": "float"},
        {"name": "updateFrequency", "type": "float"},
        {"name": "qualityScore", "type": "float"},
        {"name": "rewards", "type": "float"},
        {"name": "dataType", "type": "string"}
      ]}}
    ]}},
    {"name": "identity", "type": {"type": "record", "name": "Identity", "fields": [
      {"name": "publicKey", "type": "string"},
      {"name": "clientType", "type": "string"}
    ]}}
  ]
}`
