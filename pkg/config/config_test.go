package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.QPS != 0.7 || cfg.Concurrency != 3 || cfg.BatchSize != 100 || cfg.Retries != 3 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.BaseDelay != 800*time.Millisecond || cfg.BackoffFactor != 1.8 {
		t.Errorf("unexpected backoff defaults: %v x%v", cfg.BaseDelay, cfg.BackoffFactor)
	}
	if cfg.NavTimeout != 25*time.Second {
		t.Errorf("nav_timeout = %v", cfg.NavTimeout)
	}
	if cfg.AllowAutomation {
		t.Error("allow_automation must default to false")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collector.yaml")
	yaml := `
qps: 2
concurrency: 5
store:
  driver: sqlite
  sqlite_path: from-file.db
extract:
  kind: company
  version: 3
  fields:
    name: h1.name
    site: "a.site@href"
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GATED_CONCURRENCY", "7")
	t.Setenv("GATED_DB_PATH", "from-env.db")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.QPS != 2 {
		t.Errorf("qps = %v", cfg.QPS)
	}
	if cfg.Concurrency != 7 {
		t.Errorf("env override lost: concurrency = %d", cfg.Concurrency)
	}
	if cfg.Store.SQLitePath != "from-env.db" {
		t.Errorf("sqlite_path = %q", cfg.Store.SQLitePath)
	}
	if cfg.Extract.Kind != "company" || cfg.Extract.Version != 3 {
		t.Errorf("extract = %+v", cfg.Extract)
	}
	if cfg.Extract.Fields["site"] != "a.site@href" {
		t.Errorf("fields = %v", cfg.Extract.Fields)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg.QPS = 0
	cfg.Mode = "some"
	cfg.Store.Driver = "mongo"
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"qps", "mode", "store.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("GATED_QPS", "1.5")
	t.Setenv("GATED_RETRIES", "5")

	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.Float64("qps", 0.7, "")
	fs.Int("retries", 3, "")
	fs.String("batch", "", "")
	if err := fs.Parse([]string{"--qps=0.25", "--batch=2026-10-17"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("", fs)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.QPS != 0.25 {
		t.Errorf("qps = %v, want flag value 0.25", cfg.QPS)
	}
	if cfg.Retries != 5 {
		t.Errorf("retries = %d, want env value 5 over unset flag", cfg.Retries)
	}
	if cfg.BatchID != "2026-10-17" {
		t.Errorf("batch_id = %q", cfg.BatchID)
	}
}

func TestLoadLegacyEnvNames(t *testing.T) {
	t.Setenv("GATED_BATCH", "7")
	t.Setenv("GATED_BASE_DELAY", "0.8")
	t.Setenv("GATED_NAV_TIMEOUT", "40s")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BatchSize != 7 {
		t.Errorf("batch_size = %d, want 7 from GATED_BATCH", cfg.BatchSize)
	}
	if cfg.BatchID != "" {
		t.Errorf("batch_id = %q, GATED_BATCH must not set it", cfg.BatchID)
	}
	if cfg.BaseDelay != 800*time.Millisecond {
		t.Errorf("base_delay = %v, want 800ms from seconds form", cfg.BaseDelay)
	}
	if cfg.NavTimeout != 40*time.Second {
		t.Errorf("nav_timeout = %v", cfg.NavTimeout)
	}
}

func TestLoadHeadlessFlag(t *testing.T) {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.Bool("headless", true, "")
	if err := fs.Parse([]string{"--headless=false"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("", fs)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Fetcher.Headless {
		t.Error("fetcher.headless = true, want false from flag")
	}
}
