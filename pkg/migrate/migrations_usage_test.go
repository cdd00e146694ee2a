package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matching %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestUsersMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_users.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS users",
		"plan_id TEXT NOT NULL REFERENCES plans(id)",
		"CHECK (tokens_used >= 0)",
		"idx_users_cycle_reset_at",
		"DROP TABLE IF EXISTS users",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestUsageEventsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_usage_events.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS usage_events",
		"REFERENCES users(id) ON DELETE CASCADE",
		"CHECK (tokens >= 0)",
		"idx_usage_events_user_created",
		"DROP TABLE IF EXISTS usage_events",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestSeedPlansMigrationCoversAllTiers(t *testing.T) {
	content := readMigration(t, "*_seed_plans.sql")

	for _, tier := range []string{"'free'", "'plus'", "'pro'", "'enterprise'"} {
		if !strings.Contains(content, tier) {
			t.Errorf("seed migration missing tier %s", tier)
		}
	}
	if !strings.Contains(content, "ON CONFLICT (id) DO NOTHING") {
		t.Errorf("seed migration should be idempotent")
	}
}
