package sqlite

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "path/filepath"
    "testing"
    "time"

    "juscapture/internal/domain"
    "juscapture/internal/ports"
    "juscapture/internal/secrets"
)

var _ ports.Store = (*Store)(nil)
var _ ports.CredentialStore = (*Store)(nil)
var _ ports.CredentialWriter = (*Store)(nil)

func openTest(t *testing.T) *Store {
    t.Helper()
    sealer, err := secrets.New(bytes.Repeat([]byte{1}, 32))
    if err != nil {
        t.Fatalf("sealer: %v", err)
    }
    s, err := Open(filepath.Join(t.TempDir(), "test.db"), sealer)
    if err != nil {
        t.Fatalf("open: %v", err)
    }
    t.Cleanup(func() { _ = s.Close() })
    return s
}

func pendingLog(id string, payload json.RawMessage) domain.RawCaptureLog {
    now := time.Now().UTC()
    return domain.RawCaptureLog{
        ID:           id,
        CaptureLogID: domain.NoCaptureLogID,
        CaptureType:  domain.CaptureDocket,
        LawyerID:     "l1",
        Tribunal:     "TRT2",
        Level:        domain.LevelFirst,
        Status:       domain.StatusPending,
        RawPayload:   payload,
        CreatedAt:    now,
        UpdatedAt:    now,
    }
}

func TestRawLogFinalizeOnce(t *testing.T) {
    s := openTest(t)
    ctx := context.Background()
    payload := json.RawMessage(`{"records":[{"a":1}]}`)
    if err := s.InsertRawLog(ctx, pendingLog("r1", payload)); err != nil {
        t.Fatalf("insert: %v", err)
    }
    sum := &domain.ProcessedSummary{PersistenceSummary: domain.PersistenceSummary{Total: 1, Created: 1}}
    if err := s.FinalizeRawLog(ctx, "r1", domain.StatusSuccess, sum, ""); err != nil {
        t.Fatalf("finalize: %v", err)
    }
    if err := s.FinalizeRawLog(ctx, "r1", domain.StatusError, nil, "again"); !errors.Is(err, domain.ErrRawLogFinal) {
        t.Fatalf("second finalize: expected ErrRawLogFinal, got %v", err)
    }
    if err := s.FinalizeRawLog(ctx, "missing", domain.StatusError, nil, ""); !errors.Is(err, domain.ErrNotFound) {
        t.Fatalf("expected ErrNotFound, got %v", err)
    }
    got, err := s.GetRawLog(ctx, "r1")
    if err != nil {
        t.Fatalf("get: %v", err)
    }
    if got.Status != domain.StatusSuccess || string(got.RawPayload) != string(payload) {
        t.Fatalf("unexpected log: %+v", got)
    }
    if got.ProcessedSummary == nil || got.ProcessedSummary.Created != 1 {
        t.Fatalf("summary not stored: %+v", got.ProcessedSummary)
    }
}

func TestRawPayloadImmutable(t *testing.T) {
    s := openTest(t)
    ctx := context.Background()
    if err := s.InsertRawLog(ctx, pendingLog("r1", json.RawMessage(`{"records":[]}`))); err != nil {
        t.Fatalf("insert: %v", err)
    }
    err := s.DB().Exec(`UPDATE raw_capture_logs SET raw_payload = '{}' WHERE id = 'r1'`).Error
    if err == nil {
        t.Fatal("payload update was accepted")
    }
    if err := s.DB().Exec(`DELETE FROM raw_capture_logs WHERE id = 'r1'`).Error; err == nil {
        t.Fatal("delete was accepted")
    }
}

func TestListRawLogsOmitsPayload(t *testing.T) {
    s := openTest(t)
    ctx := context.Background()
    first := pendingLog("r1", json.RawMessage(`{"records":[]}`))
    second := pendingLog("r2", nil)
    second.CreatedAt = first.CreatedAt.Add(time.Second)
    second.CaptureType = domain.CaptureHearings
    for _, l := range []domain.RawCaptureLog{first, second} {
        if err := s.InsertRawLog(ctx, l); err != nil {
            t.Fatalf("insert: %v", err)
        }
    }
    all, err := s.ListRawLogs(ctx, domain.RawLogFilter{})
    if err != nil {
        t.Fatalf("list: %v", err)
    }
    if len(all) != 2 || all[0].ID != "r2" {
        t.Fatalf("expected newest first, got %+v", all)
    }
    for _, l := range all {
        if l.RawPayload != nil {
            t.Fatalf("payload returned by list for %s", l.ID)
        }
    }
    hearings, err := s.ListRawLogs(ctx, domain.RawLogFilter{CaptureType: domain.CaptureHearings})
    if err != nil || len(hearings) != 1 {
        t.Fatalf("filter by type: %v %+v", err, hearings)
    }
}

func TestUpsertIsIdempotent(t *testing.T) {
    s := openTest(t)
    ctx := context.Background()
    p := domain.Process{NaturalKey: "process|TRT2|1|1", Number: "0000001-00.2024.5.02.0001", Tribunal: "TRT2", Level: domain.LevelFirst, Class: "ATOrd"}
    first, err := s.UpsertProcess(ctx, p)
    if err != nil || !first.Created {
        t.Fatalf("first upsert: %+v %v", first, err)
    }
    var before processRow
    s.DB().First(&before, first.ID)

    time.Sleep(5 * time.Millisecond)
    p.Class = ""
    p.Court = "1ª Vara"
    second, err := s.UpsertProcess(ctx, p)
    if err != nil {
        t.Fatalf("second upsert: %v", err)
    }
    if second.Created || second.ID != first.ID {
        t.Fatalf("second upsert created a new row: %+v", second)
    }
    n, _ := s.CountEntities(ctx, domain.KindProcess)
    if n != 1 {
        t.Fatalf("expected one row, got %d", n)
    }
    var after processRow
    s.DB().First(&after, first.ID)
    if after.Class != "ATOrd" || after.Court != "1ª Vara" {
        t.Fatalf("merge lost data: %+v", after)
    }
    if !after.UpdatedAt.After(before.UpdatedAt) {
        t.Fatalf("updated_at not bumped: %v -> %v", before.UpdatedAt, after.UpdatedAt)
    }
}

func TestLookupAndEntityKey(t *testing.T) {
    s := openTest(t)
    ctx := context.Background()
    res, err := s.UpsertParty(ctx, domain.Party{NaturalKey: "party|cpf:12345678901", Name: "Maria"})
    if err != nil {
        t.Fatalf("upsert: %v", err)
    }
    id, found, err := s.LookupEntity(ctx, domain.KindParty, "party|cpf:12345678901")
    if err != nil || !found || id != res.ID {
        t.Fatalf("lookup: %d %v %v", id, found, err)
    }
    key, found, err := s.EntityKey(ctx, domain.KindParty, res.ID)
    if err != nil || !found || key != "party|cpf:12345678901" {
        t.Fatalf("entity key: %q %v %v", key, found, err)
    }
    if _, found, _ := s.LookupEntity(ctx, domain.KindParty, "party|cpf:0"); found {
        t.Fatal("found a key that was never written")
    }
}

func TestCreateMappingConflict(t *testing.T) {
    s := openTest(t)
    ctx := context.Background()
    m := domain.IdentityMapping{EntityType: domain.KindParty, EntityID: 1, PortalPersonID: 555, System: "pje", Tribunal: "TRT2", Level: domain.LevelFirst}
    if _, err := s.CreateMapping(ctx, m); err != nil {
        t.Fatalf("create: %v", err)
    }
    m.EntityID = 2
    if _, err := s.CreateMapping(ctx, m); !errors.Is(err, domain.ErrConflict) {
        t.Fatalf("expected ErrConflict, got %v", err)
    }
    got, found, err := s.FindMapping(ctx, m.Key())
    if err != nil || !found || got.EntityID != 1 {
        t.Fatalf("find: %+v %v %v", got, found, err)
    }
    other := m.Key()
    other.Tribunal = "TRT15"
    if _, found, _ := s.FindMapping(ctx, other); found {
        t.Fatal("mapping leaked across tribunals")
    }
}

func TestLockRows(t *testing.T) {
    s := openTest(t)
    ctx := context.Background()
    now := time.Now().UTC()
    s.now = func() time.Time { return now }

    if ok, err := s.TryAcquire(ctx, "k", "a", time.Minute); err != nil || !ok {
        t.Fatalf("acquire a: %v %v", ok, err)
    }
    if ok, _ := s.TryAcquire(ctx, "k", "b", time.Minute); ok {
        t.Fatal("b acquired a held lock")
    }
    now = now.Add(2 * time.Minute)
    if ok, _ := s.TryAcquire(ctx, "k", "b", time.Minute); !ok {
        t.Fatal("b could not seize an expired lock")
    }
    if ok, _ := s.Refresh(ctx, "k", "a", time.Minute); ok {
        t.Fatal("a refreshed a lock it no longer owns")
    }
    if err := s.Release(ctx, "k", "b"); err != nil {
        t.Fatalf("release: %v", err)
    }
    if ok, _ := s.TryAcquire(ctx, "k", "c", time.Minute); !ok {
        t.Fatal("released lock not free")
    }
}

func TestJobLifecycle(t *testing.T) {
    s := openTest(t)
    ctx := context.Background()
    req := domain.CaptureRequest{LawyerID: "l1", Tribunal: "TRT2", Level: domain.LevelFirst, Type: domain.CaptureDocket}
    id, err := s.EnqueueJob(ctx, req)
    if err != nil {
        t.Fatalf("enqueue: %v", err)
    }
    job, found, err := s.ClaimNext(ctx)
    if err != nil || !found || job.ID != id || job.Status != "running" || job.Attempts != 1 {
        t.Fatalf("claim: %+v %v %v", job, found, err)
    }
    if _, found, _ := s.ClaimNext(ctx); found {
        t.Fatal("job handed out twice")
    }
    if err := s.MarkCompleted(ctx, id, domain.CaptureOutcome{RawLogID: "r1", Status: domain.StatusPartial}); err != nil {
        t.Fatalf("complete: %v", err)
    }
    got, err := s.GetJob(ctx, id)
    if err != nil || got.Status != "completed" || got.RawLogID != "r1" || got.OutcomeStatus != domain.StatusPartial {
        t.Fatalf("get: %+v %v", got, err)
    }
}

func TestCredentialsSealedAtRest(t *testing.T) {
    s := openTest(t)
    ctx := context.Background()
    id, err := s.PutCredential(ctx, domain.Credential{LawyerID: "l1", Tribunal: "trt2", Level: domain.LevelFirst, Login: "123", Secret: "hunter2"})
    if err != nil {
        t.Fatalf("put: %v", err)
    }
    var row credentialRow
    s.DB().First(&row, "id = ?", id)
    if bytes.Contains(row.SecretSealed, []byte("hunter2")) {
        t.Fatal("secret stored in clear")
    }
    c, err := s.GetCredential(ctx, "l1", "TRT2", domain.LevelFirst)
    if err != nil || c.Secret.Reveal() != "hunter2" || !c.Active {
        t.Fatalf("get: %+v %v", c, err)
    }
    if err := s.DeactivateCredential(ctx, id, "rejected"); err != nil {
        t.Fatalf("deactivate: %v", err)
    }
    c, _ = s.GetCredential(ctx, "l1", "TRT2", domain.LevelFirst)
    if c.Active {
        t.Fatal("credential still active")
    }
}
