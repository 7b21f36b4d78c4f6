package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	fileNameRe     = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)
	// moneyColumnRe matches column definitions holding shilling amounts.
	moneyColumnRe = regexp.MustCompile(`(?i)^\s*([a-z_]*(?:amount|price|total))\s+([a-z]+(?:\s*\(\s*\d+\s*,\s*\d+\s*\))?)`)
)

const moneyType = "numeric(12,2)"

// CreateSQLMigration writes an empty goose migration named
// <dir>/<YYYYMMDDHHMMSS>_<name>.sql and returns its path.
func CreateSQLMigration(dir, name string) (string, error) {
	return createSQLMigration(dir, name, time.Now().UTC())
}

func createSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := sanitizeName(name)
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	versions, err := listVersions(dir)
	if err != nil {
		return "", err
	}
	version := now.Format(versionLayout)
	// Keep versions strictly increasing even when a teammate's clock ran ahead.
	if n := len(versions); n > 0 && version <= versions[n-1] {
		latest, _ := time.Parse(versionLayout, versions[n-1])
		version = latest.Add(time.Second).Format(versionLayout)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version, safe))
	body := fmt.Sprintf(`-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`, safe)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

// ValidateDir checks every migration in dir: file naming, unique versions,
// Up and Down sections, balanced statement blocks, and numeric(12,2) for
// money columns.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := fileNameRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read file %q: %w", name, err)
		}
		if err := validateBody(string(data)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}
	return nil
}

func validateBody(sql string) error {
	if !strings.Contains(sql, "-- +goose Up") {
		return fmt.Errorf(`missing "-- +goose Up"`)
	}
	if !strings.Contains(sql, "-- +goose Down") {
		return fmt.Errorf(`missing "-- +goose Down"`)
	}
	begins := strings.Count(sql, "-- +goose StatementBegin")
	ends := strings.Count(sql, "-- +goose StatementEnd")
	if begins != ends {
		return fmt.Errorf("unbalanced statement blocks: %d begin, %d end", begins, ends)
	}
	for i, line := range strings.Split(sql, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		m := moneyColumnRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		colType := strings.ToLower(strings.Join(strings.Fields(m[2]), ""))
		if colType != moneyType {
			return fmt.Errorf("line %d: money column %s must be %s, got %s", i+1, m[1], moneyType, m[2])
		}
	}
	return nil
}

func sanitizeName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}

// listVersions returns the sorted versions of the migrations already in dir.
func listVersions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}
	var versions []string
	for _, entry := range entries {
		if m := fileNameRe.FindStringSubmatch(entry.Name()); m != nil {
			versions = append(versions, m[1])
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// parseVersion validates a YYYYMMDDHHMMSS version string.
func parseVersion(raw string) (int64, error) {
	if _, err := time.Parse(versionLayout, raw); err != nil {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", raw, err)
	}
	return strconv.ParseInt(raw, 10, 64)
}
