package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Applies the SQL files under scripts/migrations in version order, recording
// each applied version in schema_migrations. Safe to re-run.
func main() {
	dbPath := flag.String("db", "./calreach.db", "Path to the database file")
	migrationsDir := flag.String("migrations", "scripts/migrations", "Path to the migrations directory")
	flag.Parse()

	db, err := sql.Open("sqlite3", *dbPath+"?_busy_timeout=5000")
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		log.Fatalf("Failed to create migrations table: %v", err)
	}

	entries, err := os.ReadDir(*migrationsDir)
	if err != nil {
		log.Fatalf("Failed to read migrations directory: %v", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, name := range files {
		version, err := migrationVersion(name)
		if err != nil {
			log.Fatalf("Skipping %s: %v", name, err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			log.Fatalf("Failed to check migration status: %v", err)
		}
		if count > 0 {
			continue
		}

		script, err := os.ReadFile(filepath.Join(*migrationsDir, name))
		if err != nil {
			log.Fatalf("Failed to read migration %s: %v", name, err)
		}

		fmt.Printf("Applying migration %d: %s\n", version, name)
		tx, err := db.Begin()
		if err != nil {
			log.Fatalf("Failed to begin transaction: %v", err)
		}
		if _, err := tx.Exec(string(script)); err != nil {
			tx.Rollback()
			log.Fatalf("Failed to apply migration %s: %v", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			log.Fatalf("Failed to record migration %s: %v", name, err)
		}
		if err := tx.Commit(); err != nil {
			log.Fatalf("Failed to commit migration %s: %v", name, err)
		}
		applied++
	}

	if applied == 0 {
		fmt.Println("Database is up to date")
		return
	}
	fmt.Printf("Applied %d migration(s)\n", applied)
}

// migrationVersion parses the leading numeric prefix of a migration file
// name, e.g. "001_initial_schema.sql" -> 1.
func migrationVersion(name string) (int, error) {
	idx := strings.IndexByte(name, '_')
	if idx <= 0 {
		return 0, fmt.Errorf("no numeric version prefix")
	}
	version, err := strconv.Atoi(name[:idx])
	if err != nil {
		return 0, fmt.Errorf("invalid version prefix: %w", err)
	}
	return version, nil
}
