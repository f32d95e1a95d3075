package db

import (
	"regexp"
	"strings"
	"testing"
)

const migrationsDir = "../../../migrations"

func loadCoreMigration(t *testing.T) Migration {
	t.Helper()
	m := NewMigrator(nil, migrationsDir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no migrations found")
	}
	first := migrations[0]
	if first.Version != 1 {
		t.Fatalf("expected first migration version 1, got %d (%s)", first.Version, first.Name)
	}
	return first
}

func TestLoadMigrations_VersionOrder(t *testing.T) {
	m := NewMigrator(nil, migrationsDir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			t.Errorf("migrations out of order: %d after %d",
				migrations[i].Version, migrations[i-1].Version)
		}
	}
}

// columnDef extracts the full column definition line for a column inside a
// CREATE TABLE statement.
func columnDef(t *testing.T, sql, table, column string) string {
	t.Helper()
	re := regexp.MustCompile(`(?is)CREATE TABLE IF NOT EXISTS ` + table + `\s*\((.*?)\);`)
	match := re.FindStringSubmatch(sql)
	if match == nil {
		t.Fatalf("table %s not found in migration", table)
	}
	for _, line := range strings.Split(match[1], "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), column+" ") {
			return strings.TrimSpace(line)
		}
	}
	t.Fatalf("column %s.%s not found in migration", table, column)
	return ""
}

// A freshly created record has no chief complaint or clinical impression;
// the schema must accept NULL for both or every initial draft insert fails.
func TestCoreMigration_ClinicalFieldsNullable(t *testing.T) {
	mig := loadCoreMigration(t)

	for _, col := range []string{"chief_complaint", "clinical_impression"} {
		def := columnDef(t, mig.SQL, "medical_record", col)
		if strings.Contains(strings.ToUpper(def), "NOT NULL") {
			t.Errorf("%s must be nullable, got %q", col, def)
		}
	}
}

// The instance store's compare-and-swap needs its version column.
func TestCoreMigration_InstanceVersionColumn(t *testing.T) {
	mig := loadCoreMigration(t)

	def := columnDef(t, mig.SQL, "workflow_instance", "version")
	if !strings.Contains(strings.ToUpper(def), "NOT NULL") {
		t.Errorf("version column should be NOT NULL, got %q", def)
	}
	if !strings.Contains(def, "DEFAULT 1") {
		t.Errorf("version column should default to 1, got %q", def)
	}
}
