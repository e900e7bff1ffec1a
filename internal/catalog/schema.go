package catalog

// CreateDescriptionsTableSQL creates the table descriptions cache table.
// The payload column holds the JSON-encoded description exactly as the
// remote store returned it, so the schema never changes when the
// description type grows a field.
const CreateDescriptionsTableSQL = `
CREATE TABLE IF NOT EXISTS table_descriptions (
    table_name TEXT PRIMARY KEY,
    payload BLOB NOT NULL,
    described_at INTEGER NOT NULL
)`

// CreateDescribedAtIndexSQL creates an index for TTL-based expiry sweeps.
const CreateDescribedAtIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_descriptions_described_at ON table_descriptions(described_at)`

// AllSchemaSQL returns all SQL statements needed to initialize the cache.
func AllSchemaSQL() []string {
	return []string{
		CreateDescriptionsTableSQL,
		CreateDescribedAtIndexSQL,
	}
}
