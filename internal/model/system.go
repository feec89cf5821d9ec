package model

// VersionInfo contains version and schema information for the application.
type VersionInfo struct {
	AppVersion      string `json:"app_version"`
	SchemaVersion   int    `json:"schema_version"`
	LatestSchema    int    `json:"latest_schema"`
	MigrationNeeded bool   `json:"migration_needed"`
}
