package postgres

import (
	"strings"
	"testing"
)

func TestLinkReadsExcludeDeletedLinks(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"snapshot", linkSnapshotSQL},
		{"stats", linkStatsSQL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(tt.sql, "l.deleted_at IS NULL") {
				t.Errorf("Expected %s query to skip deleted links:\n%s", tt.name, tt.sql)
			}
		})
	}
}
