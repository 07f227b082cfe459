package migrations

import (
	"fmt"
	"os"
	"path/filepath"
)

var (
	// MigrationsDir can be overridden in tests or by the application
	MigrationsDir = "scripts/migrations"
)

const initialSchemaFile = "001_initial_schema.sql"

// GetInitialSchema returns the initial database schema. The schema file is
// looked up relative to the working directory, which differs between the
// binary and package tests.
func GetInitialSchema() (string, error) {
	searchPaths := []string{
		filepath.Join(MigrationsDir, initialSchemaFile),
		filepath.Join("..", "..", MigrationsDir, initialSchemaFile),
		filepath.Join("..", MigrationsDir, initialSchemaFile),
	}

	for _, path := range searchPaths {
		schema, err := os.ReadFile(path)
		if err == nil {
			return string(schema), nil
		}
	}

	return "", fmt.Errorf("could not find schema file %s under %s", initialSchemaFile, MigrationsDir)
}
