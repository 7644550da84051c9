package main

import (
    "context"
    "fmt"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/go-chi/chi/v5"

    "juscapture/internal/app"
    "juscapture/internal/config"
    "juscapture/internal/workers/capturerunner"
)

func main() {
    cfg, err := config.Load()
    if err != nil {
        log.Fatalf("config: %v", err)
    }
    log.Printf("config: %s", cfg)

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    a, err := app.New(ctx, cfg)
    if err != nil {
        log.Fatalf("startup: %v", err)
    }
    defer a.Close()

    r := chi.NewRouter()
    r.Mount("/", a.Handler())

    // Optional background capture workers
    workersDone := make(chan struct{})
    if cfg.CaptureWorkers > 0 {
        go func() {
            defer close(workersDone)
            capturerunner.Run(ctx, a.Store, a.Capturer, cfg.CaptureWorkers, 500*time.Millisecond)
        }()
        log.Printf("capture workers started: %d", cfg.CaptureWorkers)
    } else {
        close(workersDone)
    }

    srv := &http.Server{Addr: cfg.ListenAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
    errCh := make(chan error, 1)
    go func() { errCh <- srv.ListenAndServe() }()
    log.Printf("listening on %s", cfg.ListenAddr)

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
    select {
    case sig := <-sigCh:
        log.Printf("shutting down on %s", sig)
        shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
        defer done()
        if err := srv.Shutdown(shutdownCtx); err != nil {
            log.Printf("http shutdown: %v", err)
        }
        cancel()
        <-workersDone
    case err := <-errCh:
        log.Fatal(fmt.Errorf("server error: %w", err))
    }
}
