package app

import (
    "context"
    "net/http"
    "net/http/httptest"
    "os"
    "path/filepath"
    "strings"
    "testing"

    "juscapture/internal/config"
    "juscapture/internal/domain"
)

const tribunals = `
tribunals:
  - code: trt2
    system: pje
    instances:
      primeiro_grau:
        base_url: https://pje.trt2.jus.br/primeirograu
        endpoints:
          acervo_geral: /api/acervo
      segundo_grau:
        base_url: https://pje.trt2.jus.br/segundograu
        system: pje-kz
`

func TestInstancesInheritSystem(t *testing.T) {
    f, err := config.ParseTribunals([]byte(tribunals))
    if err != nil {
        t.Fatalf("parse: %v", err)
    }
    byLevel := map[domain.InstanceLevel]string{}
    for _, in := range Instances(f) {
        byLevel[in.Level] = in.System
        if in.Level == domain.LevelFirst && in.Endpoints[domain.CaptureDocket].Path != "/api/acervo" {
            t.Fatalf("endpoint lost: %+v", in.Endpoints)
        }
    }
    if byLevel[domain.LevelFirst] != "pje" || byLevel[domain.LevelSecond] != "pje-kz" {
        t.Fatalf("systems %v", byLevel)
    }
}

func TestNewWithSQLite(t *testing.T) {
    dir := t.TempDir()
    path := filepath.Join(dir, "tribunals.yaml")
    if err := os.WriteFile(path, []byte(tribunals), 0o600); err != nil {
        t.Fatal(err)
    }
    cfg := config.Config{
        StoreDriver:   "sqlite",
        SQLitePath:    filepath.Join(dir, "app.db"),
        TribunalsFile: path,
        CredentialKey: strings.Repeat("ab", 32),
    }
    a, err := New(context.Background(), cfg)
    if err != nil {
        t.Fatalf("new: %v", err)
    }
    defer a.Close()
    if a.Catalog.Len() != 2 || a.Catalog.System("TRT2", domain.LevelSecond) != "pje-kz" {
        t.Fatalf("catalog not loaded: %d", a.Catalog.Len())
    }
    rec := httptest.NewRecorder()
    a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
    if rec.Code != http.StatusOK {
        t.Fatalf("healthz: %d", rec.Code)
    }
}

func TestNewRequiresKey(t *testing.T) {
    if _, err := New(context.Background(), config.Config{StoreDriver: "sqlite"}); err == nil {
        t.Fatal("expected an error without CREDENTIAL_KEY")
    }
}

func TestMissingTribunalsFileIsEmptyCatalog(t *testing.T) {
    c, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
    if err != nil || c.Len() != 0 {
        t.Fatalf("%v %v", c, err)
    }
}
