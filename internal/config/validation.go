package config

import (
	"fmt"
	"strings"

	"bulkupload/internal/logging"

	"github.com/Knetic/govaluate"
)

var knownLogLevels = []string{"none", "error", "warn", "warning", "info", "debug"}

// isValidEnumValue checks if a value is present in a list of allowed string
// values (case-insensitive).
func isValidEnumValue(value string, allowedValues []string) bool {
	lowerValue := strings.ToLower(value)
	for _, allowed := range allowedValues {
		if lowerValue == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// ValidateConfig performs comprehensive validation of the entire driver
// configuration, aggregating every problem found rather than stopping at
// the first one.
func ValidateConfig(cfg *DriverConfig) error {
	var allErrors []string

	if !isValidEnumValue(cfg.Logging.Level, knownLogLevels) {
		allErrors = append(allErrors, fmt.Sprintf("- Config.Logging.Level: invalid log level '%s', must be one of %v", cfg.Logging.Level, knownLogLevels))
	}
	if cfg.CollectionID == 0 {
		allErrors = append(allErrors, "- Config.CollectionID: is required")
	}
	if cfg.DatasetID == 0 {
		allErrors = append(allErrors, "- Config.DatasetID: is required")
	}
	if cfg.PlanFile == "" {
		allErrors = append(allErrors, "- Config.PlanFile: is required")
	}
	if cfg.RowsFile == "" {
		allErrors = append(allErrors, "- Config.RowsFile: is required")
	}
	if cfg.SchemaFile == "" {
		allErrors = append(allErrors, "- Config.SchemaFile: is required")
	}
	if cfg.Store == "" {
		allErrors = append(allErrors, "- Config.Store: is required")
	}
	if cfg.Filter != "" {
		if _, err := govaluate.NewEvaluableExpression(cfg.Filter); err != nil {
			allErrors = append(allErrors, fmt.Sprintf("- Config.Filter: invalid expression syntax: %v", err))
		}
	}

	if len(allErrors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(allErrors, "\n"))
	}
	logging.Logf(logging.Debug, "Configuration validation successful.")
	return nil
}
