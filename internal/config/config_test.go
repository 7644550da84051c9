package config

import (
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"

    "juscapture/internal/domain"
)

func TestLoadDefaultsAndOverrides(t *testing.T) {
    chdir(t, t.TempDir())
    t.Setenv("STORE_DRIVER", "sqlite")
    t.Setenv("ATTEMPT_TIMEOUT", "90s")
    t.Setenv("CAPTURE_WORKERS", "4")
    t.Setenv("CREDENTIAL_KEY", "super-secret-key")

    cfg, err := Load()
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    if cfg.AttemptTimeout != 90*time.Second || cfg.CaptureWorkers != 4 || cfg.LockTTL != time.Minute || cfg.PageSize != 100 {
        t.Fatalf("unexpected config %+v", cfg)
    }
    if strings.Contains(cfg.String(), "super-secret-key") {
        t.Fatal("String leaks the credential key")
    }
}

func TestLoadReportsEveryProblem(t *testing.T) {
    chdir(t, t.TempDir())
    t.Setenv("STORE_DRIVER", "postgres")
    t.Setenv("DATABASE_URL", "")
    t.Setenv("LOCK_TTL", "soon")
    _, err := Load()
    if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") || !strings.Contains(err.Error(), "LOCK_TTL") {
        t.Fatalf("expected both problems, got %v", err)
    }
}

func TestLoadReadsDotEnv(t *testing.T) {
    dir := t.TempDir()
    chdir(t, dir)
    if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("STORE_DRIVER=sqlite\nPAGE_SIZE=25\n"), 0o600); err != nil {
        t.Fatal(err)
    }
    t.Setenv("STORE_DRIVER", "")
    t.Setenv("PAGE_SIZE", "")
    os.Unsetenv("STORE_DRIVER")
    os.Unsetenv("PAGE_SIZE")
    cfg, err := Load()
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    if cfg.StoreDriver != "sqlite" || cfg.PageSize != 25 {
        t.Fatalf(".env not applied: %+v", cfg)
    }
}

const catalogue = `
tribunals:
  - code: trt2
    system: pje
    instances:
      primeiro_grau:
        base_url: https://pje.trt2.jus.br/primeirograu
        login_path: /login.seam
        endpoints:
          acervo_geral: /api/acervo
          audiencias:
            path: /api/pauta
            records_field: pauta
      "2":
        base_url: https://pje.trt2.jus.br/segundograu
`

func TestParseTribunalsNormalizesKeys(t *testing.T) {
    f, err := ParseTribunals([]byte(catalogue))
    if err != nil {
        t.Fatalf("parse: %v", err)
    }
    tr := f.Tribunals[0]
    first, ok := tr.Instances[domain.LevelFirst]
    if !ok {
        t.Fatalf("first level missing: %+v", tr.Instances)
    }
    if _, ok := tr.Instances[domain.LevelSecond]; !ok {
        t.Fatal("second level missing")
    }
    if first.Endpoints[domain.CaptureDocket].Path != "/api/acervo" {
        t.Fatalf("scalar endpoint not parsed: %+v", first.Endpoints)
    }
    if ep := first.Endpoints[domain.CaptureHearings]; ep.Path != "/api/pauta" || ep.RecordsField != "pauta" {
        t.Fatalf("mapping endpoint not parsed: %+v", ep)
    }
}

func TestParseTribunalsRejectsUnknownLevel(t *testing.T) {
    bad := strings.Replace(catalogue, `"2":`, `quinto_grau:`, 1)
    if _, err := ParseTribunals([]byte(bad)); err == nil {
        t.Fatal("expected an error for an unknown level")
    }
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
    t.Helper()
    old, err := os.Getwd()
    if err != nil {
        t.Fatalf("getwd: %v", err)
    }
    if err := os.Chdir(dir); err != nil {
        t.Fatalf("chdir: %v", err)
    }
    t.Cleanup(func() { _ = os.Chdir(old) })
}
