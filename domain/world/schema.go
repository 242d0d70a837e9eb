package world

// SchemaReport describes drift between the stored schema and the one the
// server expects. It is diagnostic only; nothing is repaired automatically.
type SchemaReport struct {
	MigrationNeeded bool     `json:"migrationNeeded"`
	MissingColumns  []string `json:"missingColumns,omitempty"`
	Message         string   `json:"message"`
	SQL             string   `json:"sql,omitempty"`
}

// DimensionColumns are the module columns added after the first release.
var DimensionColumns = []string{"width", "height"}
