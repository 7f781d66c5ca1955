package config

// DefaultLogLevel is applied when logging.level is left empty in the YAML.
const DefaultLogLevel = "info"

// DriverConfig is the top-level shape of the bulk-upload driver's YAML
// configuration file, loaded with LoadConfig.
type DriverConfig struct {
	// Logging controls verbosity via the shared internal/logging scale.
	Logging LoggingConfig `yaml:"logging"`
	// CollectionID and DatasetID scope the upload plan's tree-definition and
	// collection-default lookups (spec.md §6).
	CollectionID int64 `yaml:"collectionId"`
	DatasetID    int64 `yaml:"datasetId"`
	// Commit, if false, runs every row's transaction and rolls it back
	// instead of committing (a dry run). The -commit flag overrides this
	// exactly the way the teacher's -loglevel flag overrides Logging.Level.
	Commit bool `yaml:"commit,omitempty"`
	// PlanFile and RowsFile are paths to the upload-plan JSON and the row
	// source (CSV or XLSX); environment variables in both are expanded with
	// util.ExpandEnvUniversal before use.
	PlanFile string `yaml:"planFile"`
	RowsFile string `yaml:"rowsFile"`
	// SchemaFile points to a YAML schema-metadata definition (field
	// requiredness/picklists/datatypes, tree rank configuration), loaded
	// with schema.LoadFromFile and wrapped in a schema.CachingProvider. A
	// stand-in for live database catalog introspection, which is outside
	// this driver's scope.
	SchemaFile string `yaml:"schemaFile"`
	// OutputFile, if set, receives the run's result JSON instead of stdout.
	OutputFile string `yaml:"outputFile,omitempty"`
	// Store is the Postgres connection string for the backing DataStore.
	// Environment variables are expanded; credentials are masked wherever
	// the value is logged.
	Store string `yaml:"store"`
	// Filter is an optional govaluate boolean expression evaluated against
	// each row before parsing begins; rows for which it evaluates to false
	// (or not a bool) are skipped and reported as skipped, not as an error.
	Filter string `yaml:"filter,omitempty"`
}

// LoggingConfig holds settings related to logging verbosity.
type LoggingConfig struct {
	// Level defines the logging detail (e.g., "none", "error", "warn", "info", "debug").
	// Defaults to "info".
	Level string `yaml:"level"`
}
