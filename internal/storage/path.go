package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildSnapshotPath returns the key of the parquet export of one shop table.
func BuildSnapshotPath(prefix, tableName string) (string, error) {
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix != "" {
		for _, component := range strings.Split(prefix, "/") {
			if err := validatePathComponent(component, "snapshot prefix"); err != nil {
				return "", err
			}
		}
	}
	return path.Join(prefix, tableName+".parquet"), nil
}

// BuildAuditArchivePath returns the key for a batch of archived audit records,
// partitioned by the UTC day of the oldest record.
func BuildAuditArchivePath(day time.Time, firstID, lastID int64) (string, error) {
	if firstID <= 0 || lastID < firstID {
		return "", fmt.Errorf("invalid audit id range %d-%d", firstID, lastID)
	}
	ts := day.UTC()
	return path.Join(
		"audit",
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("audit-%d-%d.parquet", firstID, lastID),
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
