package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks every .sql file in dir: filename and version shape,
// unique versions, both goose directions, and balanced statement blocks.
// All problems are reported together.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	var errs error
	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		version := m[1]
		if prev, ok := seen[version]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name))
		}
		seen[version] = name

		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read file %q: %w", name, err))
			continue
		}
		errs = multierr.Append(errs, validateBody(name, string(body)))
	}
	return errs
}

func validateBody(name, txt string) error {
	var errs error
	up := strings.Index(txt, "-- +goose Up")
	down := strings.Index(txt, "-- +goose Down")
	if up < 0 {
		errs = multierr.Append(errs, fmt.Errorf("migration %q missing \"-- +goose Up\"", name))
	}
	if down < 0 {
		errs = multierr.Append(errs, fmt.Errorf("migration %q missing \"-- +goose Down\"", name))
	}
	if up >= 0 && down >= 0 && down < up {
		errs = multierr.Append(errs, fmt.Errorf("migration %q has Down before Up", name))
	}
	begins := strings.Count(txt, "-- +goose StatementBegin")
	ends := strings.Count(txt, "-- +goose StatementEnd")
	if begins != ends {
		errs = multierr.Append(errs, fmt.Errorf("migration %q has %d StatementBegin and %d StatementEnd", name, begins, ends))
	}
	return errs
}
