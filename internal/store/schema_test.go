package store

import (
	"strings"
	"testing"
)

// The schema runs on the same pools that serve queries, so the app role
// owns both tables. Without FORCE, PostgreSQL exempts the owner from every
// policy and the tenant-isolation predicate never fires.
func TestSchemaForcesRowLevelSecurity(t *testing.T) {
	tests := []struct {
		table      string
		statements []string
	}{
		{"sensor_data_raw", hotSchemaStatements},
		{"equipment_status", warmSchemaStatements},
	}

	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			var enabled, forced, policy bool
			for _, stmt := range tt.statements {
				if !strings.Contains(stmt, tt.table) {
					continue
				}
				if strings.Contains(stmt, "ENABLE ROW LEVEL SECURITY") {
					enabled = true
				}
				if strings.Contains(stmt, "FORCE ROW LEVEL SECURITY") {
					forced = true
				}
				if strings.Contains(stmt, "CREATE POLICY tenant_isolation") &&
					strings.Contains(stmt, "app.current_tenant_id") {
					policy = true
				}
			}
			if !enabled {
				t.Error("row-level security not enabled")
			}
			if !forced {
				t.Error("row-level security not forced; the table owner would bypass the policy")
			}
			if !policy {
				t.Error("tenant isolation policy missing")
			}
		})
	}
}
