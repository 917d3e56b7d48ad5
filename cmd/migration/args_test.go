package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseSteps(t *testing.T) {
	t.Parallel()

	if got, err := parseSteps(nil); err != nil || got != 1 {
		t.Fatalf("unexpected default steps: got=%d err=%v", got, err)
	}
	if got, err := parseSteps([]string{" 3 "}); err != nil || got != 3 {
		t.Fatalf("unexpected steps: got=%d err=%v", got, err)
	}
	for _, raw := range []string{"0", "-1", "x"} {
		if _, err := parseSteps([]string{raw}); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParseVersionAndTarget(t *testing.T) {
	t.Parallel()

	if got, err := parseVersion("4"); err != nil || got != 4 {
		t.Fatalf("unexpected version: got=%d err=%v", got, err)
	}
	if _, err := parseVersion("-2"); err == nil {
		t.Fatalf("expected negative version error")
	}
	if got, err := parseTarget("2"); err != nil || got != 2 {
		t.Fatalf("unexpected target: got=%d err=%v", got, err)
	}
	if _, err := parseTarget("-2"); err == nil {
		t.Fatalf("expected negative target error")
	}
}

func TestNormalizeDBURL(t *testing.T) {
	t.Parallel()

	raw := "postgres://u:p@localhost:5432/rank_tracker?sslmode=disable"
	if got := normalizeDBURL(raw, false); got != raw {
		t.Fatalf("expected url unchanged, got=%s", got)
	}
	got := normalizeDBURL(raw, true)
	want := "postgres://u:p@localhost:5432/rank_tracker?disable_prepared_binary_result=yes&sslmode=disable"
	if got != want {
		t.Fatalf("unexpected url: got=%s want=%s", got, want)
	}
	if again := normalizeDBURL(got, true); again != got {
		t.Fatalf("expected idempotent normalize, got=%s", again)
	}
}

func TestResolveMigrationsDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MIGRATIONS_DIR", dir)

	got, err := resolveMigrationsDir()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want, _ := filepath.Abs(dir)
	if got != want {
		t.Fatalf("unexpected dir: got=%s want=%s", got, want)
	}

	t.Setenv("MIGRATIONS_DIR", filepath.Join(dir, "missing"))
	_, localErr := os.Stat("./db/migrations")
	_, appErr := os.Stat("/app/db/migrations")
	if os.IsNotExist(localErr) && os.IsNotExist(appErr) {
		if _, err := resolveMigrationsDir(); err == nil {
			t.Fatalf("expected not found error")
		}
	}
}
