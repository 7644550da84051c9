package postgres

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "os"
    "testing"
    "time"

    "github.com/google/uuid"

    "juscapture/internal/domain"
    "juscapture/internal/ports"
    "juscapture/internal/secrets"
)

var _ ports.Store = (*DB)(nil)
var _ ports.CredentialStore = (*DB)(nil)
var _ ports.CredentialWriter = (*DB)(nil)

// connectTest needs a disposable database in TEST_DATABASE_URL.
func connectTest(t *testing.T) *DB {
    t.Helper()
    url := os.Getenv("TEST_DATABASE_URL")
    if url == "" {
        t.Skip("TEST_DATABASE_URL not set")
    }
    ctx := context.Background()
    if err := Migrate(ctx, url); err != nil {
        t.Fatalf("migrate: %v", err)
    }
    db, err := Connect(ctx, url)
    if err != nil {
        t.Fatalf("connect: %v", err)
    }
    sealer, err := secrets.New(bytes.Repeat([]byte{7}, 32))
    if err != nil {
        t.Fatalf("sealer: %v", err)
    }
    t.Cleanup(db.Close)
    return db.WithSealer(sealer)
}

func TestRawLogGuard(t *testing.T) {
    db := connectTest(t)
    ctx := context.Background()
    id := uuid.NewString()
    err := db.InsertRawLog(ctx, domain.RawCaptureLog{
        ID: id, CaptureLogID: domain.NoCaptureLogID, CaptureType: domain.CaptureDocket,
        LawyerID: "l1", Tribunal: "TRT2", Level: domain.LevelFirst,
        RawPayload: json.RawMessage(`{"records":[]}`),
    })
    if err != nil {
        t.Fatalf("insert: %v", err)
    }
    if _, err := db.Pool.Exec(ctx, `UPDATE raw_capture_logs SET raw_payload = '{}' WHERE id = $1`, id); err == nil {
        t.Fatal("payload update accepted")
    }
    if err := db.FinalizeRawLog(ctx, id, domain.StatusSuccess, &domain.ProcessedSummary{}, ""); err != nil {
        t.Fatalf("finalize: %v", err)
    }
    if err := db.FinalizeRawLog(ctx, id, domain.StatusError, nil, "x"); !errors.Is(err, domain.ErrRawLogFinal) {
        t.Fatalf("expected ErrRawLogFinal, got %v", err)
    }
    if _, err := db.Pool.Exec(ctx, `DELETE FROM raw_capture_logs WHERE id = $1`, id); err == nil {
        t.Fatal("delete accepted")
    }
}

func TestUpsertMergesAndReportsCreated(t *testing.T) {
    db := connectTest(t)
    ctx := context.Background()
    key := "party|cpf:" + uuid.NewString()
    first, err := db.UpsertParty(ctx, domain.Party{NaturalKey: key, Name: "Maria", Document: "1"})
    if err != nil || !first.Created {
        t.Fatalf("first: %+v %v", first, err)
    }
    second, err := db.UpsertParty(ctx, domain.Party{NaturalKey: key, PersonType: "F"})
    if err != nil || second.Created || second.ID != first.ID {
        t.Fatalf("second: %+v %v", second, err)
    }
    var name, personType string
    if err := db.Pool.QueryRow(ctx, `SELECT name, person_type FROM parties WHERE id = $1`, first.ID).Scan(&name, &personType); err != nil {
        t.Fatalf("select: %v", err)
    }
    if name != "Maria" || personType != "F" {
        t.Fatalf("merge lost data: %q %q", name, personType)
    }
}

func TestLockTakeover(t *testing.T) {
    db := connectTest(t)
    ctx := context.Background()
    key := "capture:" + uuid.NewString()
    if ok, err := db.TryAcquire(ctx, key, "a", 50*time.Millisecond); err != nil || !ok {
        t.Fatalf("acquire: %v %v", ok, err)
    }
    if ok, _ := db.TryAcquire(ctx, key, "b", time.Minute); ok {
        t.Fatal("held lock taken")
    }
    time.Sleep(100 * time.Millisecond)
    if ok, _ := db.TryAcquire(ctx, key, "b", time.Minute); !ok {
        t.Fatal("expired lock not taken")
    }
    if ok, _ := db.Refresh(ctx, key, "a", time.Minute); ok {
        t.Fatal("stale owner refreshed")
    }
    _ = db.Release(ctx, key, "b")
}

func TestClaimNextHandsOutOnce(t *testing.T) {
    db := connectTest(t)
    ctx := context.Background()
    id, err := db.EnqueueJob(ctx, domain.CaptureRequest{LawyerID: "l1", Tribunal: "TRT2", Level: domain.LevelFirst, Type: domain.CaptureDocket})
    if err != nil {
        t.Fatalf("enqueue: %v", err)
    }
    seen := map[string]bool{}
    for {
        job, found, err := db.ClaimNext(ctx)
        if err != nil {
            t.Fatalf("claim: %v", err)
        }
        if !found {
            break
        }
        if seen[job.ID] {
            t.Fatalf("job %s claimed twice", job.ID)
        }
        seen[job.ID] = true
    }
    if !seen[id] {
        t.Fatal("enqueued job never claimed")
    }
}
