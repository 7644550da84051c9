// Package app assembles the capture subsystem from configuration.
package app

import (
    "context"
    "errors"
    "fmt"
    "io/fs"
    "log"
    "net/http"

    httpadapter "juscapture/internal/adapters/http"
    "juscapture/internal/adapters/otp"
    "juscapture/internal/adapters/portal"
    pg "juscapture/internal/adapters/postgres"
    "juscapture/internal/adapters/sqlite"
    "juscapture/internal/config"
    "juscapture/internal/domain"
    "juscapture/internal/ports"
    "juscapture/internal/secrets"
    "juscapture/internal/services/capture"
    "juscapture/internal/services/locking"
    "juscapture/internal/services/persist"
    "juscapture/internal/services/recovery"
    "juscapture/internal/services/session"
)

// Credentials is the credential side of a database adapter.
type Credentials interface {
    ports.CredentialStore
    ports.CredentialWriter
}

type App struct {
    Config      config.Config
    Store       ports.Store
    Credentials Credentials
    Catalog     *portal.Catalog
    Sessions    *session.Manager
    Capturer    *capture.Orchestrator
    Queue       *capture.Service
    Recovery    *recovery.Service

    close func()
}

// OpenStore connects the configured database and applies migrations.
func OpenStore(ctx context.Context, cfg config.Config, sealer *secrets.Sealer) (ports.Store, Credentials, func(), error) {
    switch cfg.StoreDriver {
    case "sqlite":
        s, err := sqlite.Open(cfg.SQLitePath, sealer)
        if err != nil {
            return nil, nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
        }
        return s, s, func() { _ = s.Close() }, nil
    default:
        if err := pg.Migrate(ctx, cfg.DatabaseURL); err != nil {
            return nil, nil, nil, fmt.Errorf("migrate: %w", err)
        }
        db, err := pg.Connect(ctx, cfg.DatabaseURL)
        if err != nil {
            return nil, nil, nil, fmt.Errorf("db connect: %w", err)
        }
        db = db.WithSealer(sealer)
        return db, db, db.Close, nil
    }
}

// Sealer builds the credential sealer from CREDENTIAL_KEY.
func Sealer(cfg config.Config) (*secrets.Sealer, error) {
    if cfg.CredentialKey == "" {
        return nil, errors.New("CREDENTIAL_KEY not set")
    }
    key, err := secrets.ParseKey(cfg.CredentialKey)
    if err != nil {
        return nil, fmt.Errorf("CREDENTIAL_KEY: %w", err)
    }
    return secrets.New(key)
}

// LoadCatalog reads the tribunals file. A missing file yields an empty catalogue, so
// every capture is rejected until one is provided.
func LoadCatalog(path string) (*portal.Catalog, error) {
    f, err := config.LoadTribunals(path)
    if errors.Is(err, fs.ErrNotExist) {
        log.Printf("warning: tribunals file %s not found, no portal is configured", path)
        return portal.NewCatalog()
    }
    if err != nil {
        return nil, fmt.Errorf("tribunals %s: %w", path, err)
    }
    return portal.NewCatalog(Instances(f)...)
}

// Instances flattens the tribunals file into one portal instance per level.
func Instances(f *config.TribunalsFile) []portal.Instance {
    var out []portal.Instance
    for _, t := range f.Tribunals {
        for level, in := range t.Instances {
            system := in.System
            if system == "" {
                system = t.System
            }
            eps := make(map[domain.CaptureType]portal.Endpoint, len(in.Endpoints))
            for ct, ep := range in.Endpoints {
                eps[ct] = portal.Endpoint(ep)
            }
            out = append(out, portal.Instance{
                Tribunal:    t.Code,
                Level:       level,
                System:      system,
                BaseURL:     in.BaseURL,
                LoginPath:   in.LoginPath,
                ProfilePath: in.ProfilePath,
                LogoutPath:  in.LogoutPath,
                Endpoints:   eps,
            })
        }
    }
    return out
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
    if cfg.Debug {
        log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
    }
    sealer, err := Sealer(cfg)
    if err != nil {
        return nil, err
    }
    catalog, err := LoadCatalog(cfg.TribunalsFile)
    if err != nil {
        return nil, err
    }
    store, creds, closeStore, err := OpenStore(ctx, cfg, sealer)
    if err != nil {
        return nil, err
    }

    codes := otp.Chain{otp.NewTOTPSource()}
    if cfg.SecondFactorURL != "" {
        codes = append(codes, otp.NewPollingSource(cfg.SecondFactorURL, 0, 0))
    }
    auth := portal.NewAuthenticator(catalog, codes, portal.AuthConfig{})
    sessions := session.NewManager(auth, cfg.SessionTTL)
    locker := locking.New(store, cfg.LockTTL)
    persister := persist.New(store, store)
    fetcher := capture.NewFetcher(capture.FetcherConfig{PageRetries: cfg.PageRetries})

    orch := capture.NewOrchestrator(creds, sessions, locker, store, store, persister, fetcher, capture.Config{
        AttemptTimeout: cfg.AttemptTimeout,
        LockWait:       cfg.LockWait,
        SessionRetries: cfg.SessionRetries,
        PageSize:       cfg.PageSize,
        SystemOf:       catalog.System,
    })

    log.Printf("app: store=%s portals=%d second_factor_relay=%t", cfg.StoreDriver, catalog.Len(), cfg.SecondFactorURL != "")
    return &App{
        Config:      cfg,
        Store:       store,
        Credentials: creds,
        Catalog:     catalog,
        Sessions:    sessions,
        Capturer:    orch,
        Queue:       capture.New(store),
        Recovery:    recovery.New(store, persister, locker, cfg.LockWait),
        close:       closeStore,
    }, nil
}

func (a *App) Handler() http.Handler {
    return httpadapter.New(a.Queue, a.Capturer, a.Store, a.Recovery).Routes()
}

func (a *App) Close() {
    if a.close != nil {
        a.close()
    }
}
