package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)
	createTableRe  = regexp.MustCompile(`^create_(pc_[a-z0-9_]+)$`)

	// versionClock stamps new migrations; tests pin it.
	versionClock = time.Now
)

// MigrationName normalizes a free-form description into a migration name.
// Every ledger table is prefixed pc_, so the name must reference one.
func MigrationName(name string) (string, error) {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	if !strings.Contains(safe, "pc_") {
		return "", fmt.Errorf("migration %q must name the pc_ table it changes", safe)
	}
	return safe, nil
}

// CreateSQLMigration writes <dir>/<YYYYMMDDHHMMSS>_<name>.sql. Names of the
// form create_pc_<table> get a table skeleton; anything else an empty body.
func CreateSQLMigration(dir string, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe, err := MigrationName(name)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version := versionClock().UTC().Format(versionLayout)
	fullpath := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version, safe))
	if _, err := os.Stat(fullpath); err == nil {
		return "", fmt.Errorf("migration already exists: %s", fullpath)
	}

	if err := os.WriteFile(fullpath, []byte(migrationTemplate(safe)), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}

func migrationTemplate(name string) string {
	up, down := "-- "+name, "-- rollback "+name
	if m := createTableRe.FindStringSubmatch(name); m != nil {
		table := m[1]
		up = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
  created_at timestamptz NOT NULL DEFAULT now()
);`, table)
		down = fmt.Sprintf("DROP TABLE IF EXISTS %s;", table)
	}
	return fmt.Sprintf(`-- +goose Up
-- +goose StatementBegin
%s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
%s
-- +goose StatementEnd
`, up, down)
}
