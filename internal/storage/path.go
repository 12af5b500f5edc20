package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const auditRoot = "audit"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildAuditPath returns audit/date=YYYY-MM-DD/history-<batchID>.parquet for
// a batch closed at the given time. The date partition is always UTC.
func BuildAuditPath(closedAt time.Time, batchID string) (string, error) {
	if err := validatePathComponent(batchID, "batch id"); err != nil {
		return "", err
	}
	return path.Join(
		AuditDatePrefix(closedAt),
		fmt.Sprintf("history-%s.parquet", batchID),
	), nil
}

// AuditDatePrefix is the partition directory holding every batch of one day.
func AuditDatePrefix(day time.Time) string {
	ts := day.UTC()
	return path.Join(auditRoot, fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()))
}

// AuditPartitionDate parses the date partition out of an audit object key.
func AuditPartitionDate(key string) (time.Time, bool) {
	for _, part := range strings.Split(key, "/") {
		value, ok := strings.CutPrefix(part, "date=")
		if !ok {
			continue
		}
		day, err := time.Parse("2006-01-02", value)
		if err != nil {
			return time.Time{}, false
		}
		return day, true
	}
	return time.Time{}, false
}

func AuditRoot() string {
	return auditRoot
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
