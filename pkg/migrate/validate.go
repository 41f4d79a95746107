package migrate

import (
	"fmt"
	"io/fs"
	"regexp"
	"strings"
)

var migrationNameRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks the migrations under dir (or the embedded set when dir
// is empty).
func ValidateDir(dir string) error {
	source, err := Source(dir)
	if err != nil {
		return err
	}
	return Validate(source)
}

// Validate enforces YYYYMMDDHHMMSS_name.sql filenames, unique versions and
// both goose section markers in every file.
func Validate(source fs.FS) error {
	names, err := fs.Glob(source, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	byVersion := make(map[string]string, len(names))
	for _, name := range names {
		match := migrationNameRe.FindStringSubmatch(name)
		if match == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, dup := byVersion[match[1]]; dup {
			return fmt.Errorf("version %s used by both %q and %q", match[1], prev, name)
		}
		byVersion[match[1]] = name

		body, err := fs.ReadFile(source, name)
		if err != nil {
			return fmt.Errorf("read %q: %w", name, err)
		}
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(body), marker) {
				return fmt.Errorf("migration %q missing %q", name, marker)
			}
		}
	}
	return nil
}
