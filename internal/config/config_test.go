package config

import (
	"os"
	"path/filepath"
	"testing"
)

// isolate points HOME and cwd at fresh temp dirs so no real config leaks in.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	work := t.TempDir()
	t.Setenv("HOME", home)
	for _, name := range []string{
		"GRAPHSYNC_BACKEND", "GRAPHSYNC_SQLITE_PATH", "GRAPHSYNC_LEDGER_PATH",
		"GRAPHSYNC_LEDGER_BACKEND", "GRAPHSYNC_WORKERS", "GRAPHSYNC_SIMILARITY_THRESHOLD",
		"NEO4J_URI", "NEO4J_USER", "NEO4J_PASSWORD", "NEO4J_PASSWORD_FILE", "NEO4J_DATABASE",
	} {
		// Setenv restores the old value on cleanup; unset so godotenv may fill it.
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	t.Chdir(work)
	return work
}

func TestFindEnvLocal_InCurrentDir(t *testing.T) {
	tmpDir := isolate(t)
	if err := os.WriteFile(filepath.Join(tmpDir, ".env.local"), []byte("TEST=value"), 0644); err != nil {
		t.Fatal(err)
	}

	if findEnvLocal() == "" {
		t.Error("expected to find .env.local in current directory")
	}
}

func TestFindEnvLocal_ClosestWins(t *testing.T) {
	tmpDir := isolate(t)
	parentDir := filepath.Join(tmpDir, "parent")
	childDir := filepath.Join(parentDir, "child")
	if err := os.MkdirAll(childDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, ".env.local"), []byte("TEST=grandparent"), 0644); err != nil {
		t.Fatal(err)
	}
	parentEnvPath := filepath.Join(parentDir, ".env.local")
	if err := os.WriteFile(parentEnvPath, []byte("TEST=parent"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(childDir)

	result := findEnvLocal()
	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedResolved, _ := filepath.EvalSymlinks(parentEnvPath)
	resultResolved, _ := filepath.EvalSymlinks(result)
	if resultResolved != expectedResolved {
		t.Errorf("expected closest .env.local (%s), got %s", expectedResolved, resultResolved)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend != BackendNeo4j {
		t.Errorf("backend = %q, want neo4j", cfg.Backend)
	}
	if cfg.SimilarityThreshold != 0.5 {
		t.Errorf("threshold = %v, want 0.5", cfg.SimilarityThreshold)
	}
	if cfg.LedgerPath != filepath.Join("data", "processed", "loaded_files.txt") {
		t.Errorf("ledger path = %q", cfg.LedgerPath)
	}
	if cfg.Neo4j.User != "neo4j" || cfg.Neo4j.TimeoutSeconds != 10 || cfg.Neo4j.MaxPoolSize != 50 {
		t.Errorf("unexpected neo4j defaults: %+v", cfg.Neo4j)
	}
}

func TestLoad_Precedence(t *testing.T) {
	work := isolate(t)

	yamlPath := filepath.Join(work, "graphsync.yaml")
	yamlBody := "backend: sqlite\nworkers: 2\nneo4j:\n  uri: bolt://yaml:7687\n  database: yamldb\n"
	if err := os.WriteFile(yamlPath, []byte(yamlBody), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(work, ".env.local"), []byte("NEO4J_DATABASE=dotenvdb\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NEO4J_URI", "bolt://env:7687")

	cfg, err := Load(yamlPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend != BackendSQLite {
		t.Errorf("backend = %q, want sqlite from yaml", cfg.Backend)
	}
	if cfg.Workers != 2 {
		t.Errorf("workers = %d, want 2 from yaml", cfg.Workers)
	}
	if cfg.Neo4j.URI != "bolt://env:7687" {
		t.Errorf("uri = %q, env should win over yaml", cfg.Neo4j.URI)
	}
	if cfg.Neo4j.Database != "dotenvdb" {
		t.Errorf("database = %q, .env.local should win over yaml", cfg.Neo4j.Database)
	}
}

func TestLoad_PasswordFile(t *testing.T) {
	work := isolate(t)
	secret := filepath.Join(work, "pw")
	if err := os.WriteFile(secret, []byte("s3cret\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NEO4J_PASSWORD_FILE", secret)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Neo4j.Password != "s3cret" {
		t.Errorf("password = %q", cfg.Neo4j.Password)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "backend", env: map[string]string{"GRAPHSYNC_BACKEND": "mysql"}},
		{name: "ledger", env: map[string]string{"GRAPHSYNC_LEDGER_BACKEND": "redis"}},
		{name: "threshold", env: map[string]string{"GRAPHSYNC_SIMILARITY_THRESHOLD": "1.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}
