package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildArchivePath lays history batches out by the UTC day of their oldest
// entry. batchID keeps keys unique when several batches share a day.
func BuildArchivePath(oldest time.Time, batchID string, sequence int) (string, error) {
	if err := validatePathComponent(batchID, "batch id"); err != nil {
		return "", err
	}
	if sequence < 0 {
		return "", fmt.Errorf("sequence must be >= 0")
	}
	if oldest.IsZero() {
		return "", fmt.Errorf("oldest entry time is required")
	}

	ts := oldest.UTC()
	return path.Join(
		"query_history",
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("history-%s-%05d.parquet", batchID, sequence),
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
