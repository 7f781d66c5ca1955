package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"bulkupload/internal/config"
	"bulkupload/internal/logging"
	"bulkupload/internal/result"
	"bulkupload/internal/rowio"
	"bulkupload/internal/schema"
	"bulkupload/internal/store"
	"bulkupload/internal/uploadeval"
	"bulkupload/internal/uploadplan"
	"bulkupload/internal/util"

	"github.com/Knetic/govaluate"
	"github.com/google/uuid"
)

// Define common application-level errors.
var (
	ErrUsage          = errors.New("usage error")
	ErrConfigNotFound = errors.New("configuration file not found")
	ErrMissingArgs    = errors.New("missing required arguments")
)

// expressionEvaluator is satisfied by *govaluate.EvaluableExpression;
// narrowed to an interface so tests can substitute a fake.
type expressionEvaluator interface {
	Evaluate(map[string]interface{}) (interface{}, error)
}

// --- Factory variables (overridable for testing, matching the teacher's
// own factory-variable pattern for hermetic unit tests). ---
var (
	newRowReaderFunc = rowio.NewRowReader
	newStoreFunc     = func(ctx context.Context, connStr string) (store.DataStore, error) {
		return store.NewPostgresStore(ctx, connStr)
	}
	newSchemaProviderFunc = func(path string) (schema.Provider, error) {
		mem, err := schema.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		return schema.NewCachingProvider(mem, 4096)
	}
	newExpressionEvaluatorFunc = func(expr string) (expressionEvaluator, error) {
		evalExpr, err := govaluate.NewEvaluableExpression(expr)
		if err != nil {
			return nil, err
		}
		return evalExpr, nil
	}
	osReadFileFunc = os.ReadFile
	osStatFunc     = os.Stat
	newRunIDFunc   = func() string { return uuid.NewString() }
	scopeFunc      = uploadplan.Scope
)

// AppRunner encapsulates the bulk-upload driver's execution logic.
type AppRunner struct{}

// NewAppRunner creates a new instance of the application runner.
func NewAppRunner() *AppRunner {
	return &AppRunner{}
}

const usageText = `Usage:
  bulkupload [options]

Options:
  -config string     YAML configuration file (default "config/bulkupload.yaml")
  -plan string        Override upload-plan JSON file path from config
  -rows string         Override row source (CSV/XLSX) file path from config
  -collection int      Override collectionId from config
  -dataset int         Override datasetId from config
  -commit               Commit every row's transaction instead of rolling it back
  -loglevel string      Logging level: none|error|warn|info|debug (default "info")
  -store string        Override the Postgres store connection string
  -output string        Write result JSON to this file instead of stdout
  -dry-run              Alias for the inverse of -commit
  -help                 Show this help
`

// Usage prints the command-line help information to the specified writer.
func (a *AppRunner) Usage(writer io.Writer) {
	fmt.Fprint(writer, usageText)
}

// Run parses command-line arguments and executes one bulk-upload pass.
func (a *AppRunner) Run(args []string) error {
	fs := flag.NewFlagSet("bulkupload", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFile := fs.String("config", "config/bulkupload.yaml", "YAML configuration file")
	planFlag := fs.String("plan", "", "Override upload-plan JSON file path from config")
	rowsFlag := fs.String("rows", "", "Override row source file path from config")
	collectionFlag := fs.Int64("collection", 0, "Override collectionId from config")
	datasetFlag := fs.Int64("dataset", 0, "Override datasetId from config")
	commitFlag := fs.Bool("commit", false, "Commit every row's transaction")
	dryRunFlag := fs.Bool("dry-run", false, "Roll back every row's transaction")
	logLevelStr := fs.String("loglevel", "info", "Logging level")
	storeFlag := fs.String("store", "", "Override the Postgres store connection string")
	outputFlag := fs.String("output", "", "Write result JSON to this file instead of stdout")
	helpFlag := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			a.Usage(os.Stderr)
			return nil
		}
		logging.Logf(logging.Error, "Failed to parse args: %v", err)
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *helpFlag || (len(args) == 0 && !anyFlagsSet(fs)) {
		a.Usage(os.Stderr)
		return nil
	}

	logging.SetupLogging(*logLevelStr)
	if _, err := osStatFunc(*configFile); err != nil {
		if os.IsNotExist(err) {
			logging.Logf(logging.Error, "Config file '%s' not found.", *configFile)
			return ErrConfigNotFound
		}
		return fmt.Errorf("failed to stat config file '%s': %w", *configFile, err)
	}
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logging.Logf(logging.Error, "Error loading/validating config '%s': %v", *configFile, err)
		return err
	}

	if !isFlagSet(fs, "loglevel") && cfg.Logging.Level != "" {
		logging.SetupLogging(cfg.Logging.Level)
	}

	runID := newRunIDFunc()
	logging.Logf(logging.Info, "[%s] Starting bulk upload with config: %s", runID, *configFile)

	planFile := cfg.PlanFile
	if *planFlag != "" {
		planFile = *planFlag
	}
	planFile = util.ExpandEnvUniversal(planFile)

	rowsFile := cfg.RowsFile
	if *rowsFlag != "" {
		rowsFile = *rowsFlag
	}
	rowsFile = util.ExpandEnvUniversal(rowsFile)

	collectionID := cfg.CollectionID
	if isFlagSet(fs, "collection") {
		collectionID = *collectionFlag
	}
	datasetID := cfg.DatasetID
	if isFlagSet(fs, "dataset") {
		datasetID = *datasetFlag
	}

	commit := cfg.Commit
	if isFlagSet(fs, "commit") {
		commit = *commitFlag
	}
	if isFlagSet(fs, "dry-run") && *dryRunFlag {
		commit = false
	}

	storeConnStr := cfg.Store
	if *storeFlag != "" {
		storeConnStr = *storeFlag
	}
	storeConnStr = util.ExpandEnvUniversal(storeConnStr)
	logging.Logf(logging.Info, "[%s] Using store: %s", runID, util.MaskCredentials(storeConnStr))

	outputFile := cfg.OutputFile
	if *outputFlag != "" {
		outputFile = *outputFlag
	}

	ds, err := newStoreFunc(context.Background(), storeConnStr)
	if err != nil {
		return fmt.Errorf("failed to construct data store: %w", err)
	}

	provider, err := newSchemaProviderFunc(util.ExpandEnvUniversal(cfg.SchemaFile))
	if err != nil {
		return fmt.Errorf("failed to load schema metadata '%s': %w", cfg.SchemaFile, err)
	}

	planBytes, err := osReadFileFunc(planFile)
	if err != nil {
		return fmt.Errorf("failed to read upload plan '%s': %w", planFile, err)
	}
	planNode, err := uploadplan.ParseNode(planBytes)
	if err != nil {
		return fmt.Errorf("failed to parse upload plan '%s': %w", planFile, err)
	}
	coll := &uploadplan.Collection{ID: collectionID, DisciplineID: datasetID}
	scoped, err := scopeFunc(planNode, coll, provider)
	if err != nil {
		return fmt.Errorf("failed to scope upload plan against collection %d: %w", collectionID, err)
	}

	reader, err := newRowReaderFunc(rowsFile)
	if err != nil {
		return fmt.Errorf("failed to create row reader for '%s': %w", rowsFile, err)
	}
	rows, err := reader.Read(rowsFile)
	if err != nil {
		return fmt.Errorf("failed to read rows from '%s': %w", rowsFile, err)
	}
	logging.Logf(logging.Info, "[%s] Read %d rows from %s.", runID, len(rows), rowsFile)

	var filterEvaluator expressionEvaluator
	if cfg.Filter != "" {
		filterEvaluator, err = newExpressionEvaluatorFunc(cfg.Filter)
		if err != nil {
			return fmt.Errorf("invalid filter expression '%s': %w", cfg.Filter, err)
		}
	}

	results := make([]*result.Result, 0, len(rows))
	skipped := 0
	for i, row := range rows {
		if filterEvaluator != nil {
			keep, err := evaluateRowFilter(filterEvaluator, row)
			if err != nil {
				logging.Logf(logging.Warning, "[%s] Filter failed for row %d: %v. Masked row: %v", runID, i, err, util.MaskRow(row))
				skipped++
				continue
			}
			if !keep {
				skipped++
				continue
			}
		}

		r, err := processRow(context.Background(), ds, provider, scoped, row, commit)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		results = append(results, r)
	}
	if skipped > 0 {
		logging.Logf(logging.Info, "[%s] %d rows skipped by filter.", runID, skipped)
	}
	logging.Logf(logging.Info, "[%s] Processed %d rows.", runID, len(results))

	writer, err := newResultWriter(outputFile)
	if err != nil {
		return fmt.Errorf("failed to open output destination: %w", err)
	}
	defer func() {
		if cerr := writer.Close(); cerr != nil {
			logging.Logf(logging.Error, "[%s] Failed to close output: %v", runID, cerr)
		}
	}()
	if err := writer.Write(results); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	logging.Logf(logging.Info, "[%s] Bulk upload completed.", runID)
	return nil
}

// evaluateRowFilter runs the configured filter expression against one row's
// values, treating anything but a true boolean result as "skip".
func evaluateRowFilter(eval expressionEvaluator, row uploadplan.Row) (bool, error) {
	params := make(map[string]interface{}, len(row))
	for k, v := range row {
		params[k] = v
	}
	out, err := eval.Evaluate(params)
	if err != nil {
		return false, err
	}
	keep, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("filter expression returned non-bool result %T(%v)", out, out)
	}
	return keep, nil
}

// processRow binds scoped to row and evaluates it inside one transaction,
// committing only when commit is true (spec.md §5, §6's -commit contract).
func processRow(ctx context.Context, ds store.DataStore, provider schema.Provider, scoped uploadplan.ScopedNode, row uploadplan.Row, commit bool) (*result.Result, error) {
	bound, err := uploadplan.Bind(scoped, row)
	if err != nil {
		return nil, fmt.Errorf("failed to bind row to plan: %w", err)
	}

	var r *result.Result
	txErr := ds.WithTransaction(ctx, func(tx store.Tx) error {
		evaluated, err := uploadeval.Evaluate(ctx, tx, provider, bound)
		if err != nil {
			return err
		}
		r = evaluated
		if !commit {
			return errRolledBackByRequest
		}
		return nil
	})
	if txErr != nil && !errors.Is(txErr, errRolledBackByRequest) {
		return nil, txErr
	}
	return r, nil
}

// errRolledBackByRequest is returned from inside WithTransaction's callback
// to force a rollback on a dry run without treating the row as failed.
var errRolledBackByRequest = errors.New("app: rolled back (commit disabled)")

// stdoutNopCloser lets stdout satisfy io.WriteCloser without actually being
// closed at the end of a run.
type stdoutNopCloser struct{ io.Writer }

func (stdoutNopCloser) Close() error { return nil }

// newResultWriter opens outputFile, or wraps stdout when it is empty.
func newResultWriter(outputFile string) (*rowio.JSONResultWriter, error) {
	if outputFile == "" {
		return rowio.NewJSONResultWriter(stdoutNopCloser{os.Stdout}), nil
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return nil, err
	}
	return rowio.NewJSONResultWriter(f), nil
}

// Helper functions
func anyFlagsSet(fs *flag.FlagSet) bool {
	any := false
	fs.Visit(func(*flag.Flag) { any = true })
	return any
}
func isFlagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
