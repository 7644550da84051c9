package config

import (
    "errors"
    "fmt"
    "os"
    "strings"
    "time"

    "github.com/joho/godotenv"
)

type Config struct {
    Env            string
    ListenAddr     string
    StoreDriver    string // postgres|sqlite
    DatabaseURL    string
    SQLitePath     string
    CaptureWorkers int
    TribunalsFile  string
    // CredentialKey seals stored credential secrets (32 bytes, hex or base64).
    CredentialKey   string
    SecondFactorURL string
    AttemptTimeout  time.Duration
    SessionTTL      time.Duration
    LockTTL         time.Duration
    LockWait        time.Duration
    SessionRetries  int
    PageRetries     int
    PageSize        int
    Debug           bool
}

// String omits the credential key and the database password.
func (c Config) String() string {
    return fmt.Sprintf("env=%s listen=%s store=%s workers=%d tribunals=%s attempt_timeout=%s lock_ttl=%s page_size=%d",
        c.Env, c.ListenAddr, c.StoreDriver, c.CaptureWorkers, c.TribunalsFile, c.AttemptTimeout, c.LockTTL, c.PageSize)
}

func getenv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

// Load reads the environment, after merging a .env file from the working directory
// when one exists.
func Load() (Config, error) {
    if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
        return Config{}, fmt.Errorf("load .env: %w", err)
    }
    var errs []error
    cfg := Config{
        Env:             getenv("APP_ENV", "development"),
        ListenAddr:      getenv("LISTEN_ADDR", ":8080"),
        StoreDriver:     strings.ToLower(getenv("STORE_DRIVER", "postgres")),
        DatabaseURL:     os.Getenv("DATABASE_URL"),
        SQLitePath:      getenv("SQLITE_PATH", "juscapture.db"),
        CaptureWorkers:  getenvInt("CAPTURE_WORKERS", 0, &errs),
        TribunalsFile:   getenv("TRIBUNALS_FILE", "tribunals.yaml"),
        CredentialKey:   os.Getenv("CREDENTIAL_KEY"),
        SecondFactorURL: os.Getenv("SECOND_FACTOR_URL"),
        AttemptTimeout:  getenvDuration("ATTEMPT_TIMEOUT", 10*time.Minute, &errs),
        SessionTTL:      getenvDuration("SESSION_TTL", 30*time.Minute, &errs),
        LockTTL:         getenvDuration("LOCK_TTL", time.Minute, &errs),
        LockWait:        getenvDuration("LOCK_WAIT", 30*time.Second, &errs),
        SessionRetries:  getenvInt("SESSION_RETRIES", 3, &errs),
        PageRetries:     getenvInt("PAGE_RETRIES", 3, &errs),
        PageSize:        getenvInt("PAGE_SIZE", 100, &errs),
        Debug:           getenvBool("DEBUG"),
    }
    switch cfg.StoreDriver {
    case "postgres":
        if cfg.DatabaseURL == "" {
            errs = append(errs, errors.New("DATABASE_URL not set"))
        }
    case "sqlite":
    default:
        errs = append(errs, fmt.Errorf("STORE_DRIVER %q: expected postgres or sqlite", cfg.StoreDriver))
    }
    return cfg, errors.Join(errs...)
}

func getenvInt(key string, def int, errs *[]error) int {
    if v := os.Getenv(key); v != "" {
        var out int
        if _, err := fmt.Sscanf(v, "%d", &out); err != nil {
            *errs = append(*errs, fmt.Errorf("%s: %w", key, err))
            return def
        }
        return out
    }
    return def
}

func getenvDuration(key string, def time.Duration, errs *[]error) time.Duration {
    if v := os.Getenv(key); v != "" {
        d, err := time.ParseDuration(v)
        if err != nil || d <= 0 {
            *errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, v))
            return def
        }
        return d
    }
    return def
}

func getenvBool(key string) bool {
    switch strings.ToLower(os.Getenv(key)) {
    case "1", "true", "yes", "on":
        return true
    }
    return false
}
