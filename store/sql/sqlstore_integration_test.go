package sqlstore_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-pylon/core"
	"github.com/goliatone/go-pylon/migrations"
	"github.com/goliatone/go-pylon/ratelimit"
	sqlstore "github.com/goliatone/go-pylon/store/sql"
	"github.com/goliatone/go-pylon/webhooks"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const integrationWebhookSecret = "test_webhook_secret_12345"

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-pylon-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableCount int
	if err := client.DB().NewRaw(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN (?, ?, ?)",
		"pylon_webhook_deliveries", "pylon_page_checkpoints", "pylon_rate_limit_states",
	).Scan(context.Background(), &tableCount); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableCount != 3 {
		t.Fatalf("expected 3 core tables after migration, got %d", tableCount)
	}
}

func TestWebhookDeliveryStore_ClaimDedupeAndSettle(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	ledger := factory.DeliveryStore()
	if ledger == nil {
		t.Fatalf("expected delivery store from factory")
	}

	payload := []byte(`{"event_type":"issue_new"}`)
	record, claimed, err := ledger.Claim(ctx, "dlv_100", payload, time.Minute)
	if err != nil {
		t.Fatalf("claim delivery: %v", err)
	}
	if !claimed {
		t.Fatalf("expected first claim to win")
	}
	if record.Status != webhooks.DeliveryStatusProcessing || record.Attempts != 1 {
		t.Fatalf("expected processing attempt 1, got status=%q attempts=%d", record.Status, record.Attempts)
	}
	if record.ClaimID == "" || record.DeliveryID != "dlv_100" {
		t.Fatalf("expected claim identity, got claim_id=%q delivery_id=%q", record.ClaimID, record.DeliveryID)
	}

	duplicate, claimed, err := ledger.Claim(ctx, "dlv_100", payload, time.Minute)
	if err != nil {
		t.Fatalf("duplicate claim: %v", err)
	}
	if claimed {
		t.Fatalf("expected duplicate claim to lose while lease is active")
	}
	if duplicate.Status != webhooks.DeliveryStatusProcessing {
		t.Fatalf("expected duplicate to observe processing, got %q", duplicate.Status)
	}

	if err := ledger.Complete(ctx, record.ClaimID); err != nil {
		t.Fatalf("complete claim: %v", err)
	}

	settled, err := ledger.Get(ctx, "dlv_100")
	if err != nil {
		t.Fatalf("get settled delivery: %v", err)
	}
	if settled.Status != webhooks.DeliveryStatusProcessed || settled.Attempts != 1 {
		t.Fatalf("expected processed attempt 1, got status=%q attempts=%d", settled.Status, settled.Attempts)
	}
	if settled.LeaseExpiresAt != nil || settled.NextAttemptAt != nil {
		t.Fatalf("expected settled delivery to clear lease and schedule")
	}
	if !bytes.Equal(settled.Payload, payload) {
		t.Fatalf("expected payload to survive settle, got %q", settled.Payload)
	}

	_, claimed, err = ledger.Claim(ctx, "dlv_100", payload, time.Minute)
	if err != nil {
		t.Fatalf("claim processed delivery: %v", err)
	}
	if claimed {
		t.Fatalf("expected processed delivery to stay deduped")
	}

	err = ledger.Complete(ctx, record.ClaimID)
	if err == nil || !strings.Contains(err.Error(), "not active") {
		t.Fatalf("expected stale complete to fail, got %v", err)
	}
}

func TestWebhookDeliveryStore_FailDueReclaimAndDead(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewWebhookDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new webhook delivery store: %v", err)
	}

	payload := []byte(`{"event_type":"issue_status_changed"}`)
	first, claimed, err := store.Claim(ctx, "dlv_200", payload, time.Minute)
	if err != nil || !claimed {
		t.Fatalf("claim delivery: claimed=%v err=%v", claimed, err)
	}

	if err := store.Fail(ctx, first.ClaimID, errors.New("boom"), time.Now().UTC().Add(-time.Second), 0); err != nil {
		t.Fatalf("fail claim: %v", err)
	}

	failed, err := store.Get(ctx, "dlv_200")
	if err != nil {
		t.Fatalf("get failed delivery: %v", err)
	}
	if failed.Status != webhooks.DeliveryStatusRetryReady || failed.Attempts != 2 {
		t.Fatalf("expected retry_ready attempt 2, got status=%q attempts=%d", failed.Status, failed.Attempts)
	}
	if failed.LastError != "boom" || failed.NextAttemptAt == nil {
		t.Fatalf("expected failure cause and schedule, got last_error=%q next=%v", failed.LastError, failed.NextAttemptAt)
	}

	due, err := store.Due(ctx, 10)
	if err != nil {
		t.Fatalf("list due deliveries: %v", err)
	}
	if len(due) != 1 || due[0].DeliveryID != "dlv_200" {
		t.Fatalf("expected dlv_200 due, got %+v", due)
	}
	if !bytes.Equal(due[0].Payload, payload) {
		t.Fatalf("expected due record to carry payload for redelivery")
	}

	second, claimed, err := store.Claim(ctx, "dlv_200", payload, time.Minute)
	if err != nil || !claimed {
		t.Fatalf("reclaim due delivery: claimed=%v err=%v", claimed, err)
	}
	if second.ClaimID == first.ClaimID {
		t.Fatalf("expected reclaim to rotate claim id")
	}
	if second.Status != webhooks.DeliveryStatusProcessing || second.Attempts != 2 {
		t.Fatalf("expected reclaim to keep attempts, got status=%q attempts=%d", second.Status, second.Attempts)
	}

	if err := store.Fail(ctx, second.ClaimID, errors.New("still failing"), time.Now().UTC().Add(time.Hour), 3); err != nil {
		t.Fatalf("fail claim past budget: %v", err)
	}

	dead, err := store.Get(ctx, "dlv_200")
	if err != nil {
		t.Fatalf("get dead delivery: %v", err)
	}
	if dead.Status != webhooks.DeliveryStatusDead || dead.Attempts != 3 {
		t.Fatalf("expected dead attempt 3, got status=%q attempts=%d", dead.Status, dead.Attempts)
	}
	if dead.NextAttemptAt != nil {
		t.Fatalf("expected dead delivery to drop schedule, got %v", dead.NextAttemptAt)
	}

	_, claimed, err = store.Claim(ctx, "dlv_200", payload, time.Minute)
	if err != nil {
		t.Fatalf("claim dead delivery: %v", err)
	}
	if claimed {
		t.Fatalf("expected dead delivery to refuse claims")
	}

	due, err = store.Due(ctx, 10)
	if err != nil {
		t.Fatalf("list due after dead: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected no due deliveries after dead, got %d", len(due))
	}
}

func TestWebhookDeliveryStore_ExpiredLeaseReclaim(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewWebhookDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new webhook delivery store: %v", err)
	}

	payload := []byte(`{"event_type":"issue_new"}`)
	stale, claimed, err := store.Claim(ctx, "dlv_300", payload, time.Nanosecond)
	if err != nil || !claimed {
		t.Fatalf("claim with short lease: claimed=%v err=%v", claimed, err)
	}

	fresh, claimed, err := store.Claim(ctx, "dlv_300", payload, time.Minute)
	if err != nil {
		t.Fatalf("reclaim expired lease: %v", err)
	}
	if !claimed {
		t.Fatalf("expected expired lease to be reclaimable")
	}
	if fresh.ClaimID == stale.ClaimID {
		t.Fatalf("expected reclaim to rotate claim id")
	}
	if fresh.Attempts != 1 || fresh.Status != webhooks.DeliveryStatusProcessing {
		t.Fatalf("expected reclaim to keep attempt count, got status=%q attempts=%d", fresh.Status, fresh.Attempts)
	}

	if err := store.Complete(ctx, fresh.ClaimID); err != nil {
		t.Fatalf("complete fresh claim: %v", err)
	}
	err = store.Complete(ctx, stale.ClaimID)
	if err == nil || !strings.Contains(err.Error(), "not active") {
		t.Fatalf("expected stale claim to be rejected, got %v", err)
	}
}

func TestCheckpointStore_SaveLoadOverwrite(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.CheckpointStore()
	if store == nil {
		t.Fatalf("expected checkpoint store from factory")
	}

	if _, err := store.Load(ctx, "issues"); !errors.Is(err, core.ErrCheckpointNotFound) {
		t.Fatalf("expected checkpoint not found, got %v", err)
	}

	savedAt := time.Now().UTC().Truncate(time.Second)
	if err := store.Save(ctx, core.Checkpoint{
		Resource:  "issues",
		Cursor:    "cur_1",
		UpdatedAt: savedAt,
		Metadata:  map[string]any{"source": "incremental", "api_key": "pylon_live_123"},
	}); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	loaded, err := store.Load(ctx, "issues")
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	if loaded.Resource != "issues" || loaded.Cursor != "cur_1" {
		t.Fatalf("expected saved checkpoint, got %+v", loaded)
	}
	if !loaded.UpdatedAt.Equal(savedAt) {
		t.Fatalf("expected updated_at %v, got %v", savedAt, loaded.UpdatedAt)
	}
	if loaded.Metadata["source"] != "incremental" {
		t.Fatalf("expected metadata to round-trip, got %v", loaded.Metadata)
	}
	if loaded.Metadata["api_key"] != "[REDACTED]" {
		t.Fatalf("expected credential metadata to be masked, got %v", loaded.Metadata)
	}

	drainedAt := savedAt.Add(time.Minute)
	if err := store.Save(ctx, core.Checkpoint{
		Resource:  "issues",
		Cursor:    "",
		UpdatedAt: drainedAt,
	}); err != nil {
		t.Fatalf("save drained checkpoint: %v", err)
	}

	drained, err := store.Load(ctx, "issues")
	if err != nil {
		t.Fatalf("load drained checkpoint: %v", err)
	}
	if drained.Cursor != "" {
		t.Fatalf("expected drained checkpoint to keep empty cursor, got %q", drained.Cursor)
	}
	if !drained.UpdatedAt.Equal(drainedAt) {
		t.Fatalf("expected updated_at %v, got %v", drainedAt, drained.UpdatedAt)
	}

	var rows int
	if err := client.DB().NewRaw(
		"SELECT COUNT(*) FROM pylon_page_checkpoints WHERE resource = ?", "issues",
	).Scan(ctx, &rows); err != nil {
		t.Fatalf("count checkpoints: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected save to upsert one row per resource, got %d", rows)
	}
}

func TestRateLimitStateStore_RoundTripAndKeyNormalization(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.RateLimitStateStore()
	if store == nil {
		t.Fatalf("expected rate limit state store from factory")
	}

	key := core.ThrottleKey{Host: "api.usepylon.com", Bucket: "issues"}
	if _, err := store.Get(ctx, key); !errors.Is(err, ratelimit.ErrStateNotFound) {
		t.Fatalf("expected state not found, got %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	resetAt := now.Add(30 * time.Second)
	retryAfter := 5 * time.Second
	throttledUntil := now.Add(retryAfter)
	if err := store.Upsert(ctx, ratelimit.State{
		Key:            core.ThrottleKey{Host: " API.usepylon.com ", Bucket: " Issues "},
		Limit:          600,
		Remaining:      0,
		ResetAt:        &resetAt,
		RetryAfter:     &retryAfter,
		ThrottledUntil: &throttledUntil,
		LastStatus:     429,
		Attempts:       3,
		UpdatedAt:      now,
	}); err != nil {
		t.Fatalf("upsert throttled state: %v", err)
	}

	state, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get throttled state: %v", err)
	}
	if state.Key != key {
		t.Fatalf("expected normalized key %+v, got %+v", key, state.Key)
	}
	if state.Limit != 600 || state.Remaining != 0 || state.LastStatus != 429 || state.Attempts != 3 {
		t.Fatalf("unexpected throttled state: %+v", state)
	}
	if state.ResetAt == nil || !state.ResetAt.Equal(resetAt) {
		t.Fatalf("expected reset_at %v, got %v", resetAt, state.ResetAt)
	}
	if state.RetryAfter == nil || *state.RetryAfter != retryAfter {
		t.Fatalf("expected retry_after %v, got %v", retryAfter, state.RetryAfter)
	}
	if state.ThrottledUntil == nil || !state.ThrottledUntil.Equal(throttledUntil) {
		t.Fatalf("expected throttled_until %v, got %v", throttledUntil, state.ThrottledUntil)
	}

	if err := store.Upsert(ctx, ratelimit.State{
		Key:        key,
		Limit:      600,
		Remaining:  599,
		LastStatus: 200,
		Attempts:   0,
		UpdatedAt:  now.Add(time.Second),
	}); err != nil {
		t.Fatalf("upsert recovered state: %v", err)
	}

	recovered, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get recovered state: %v", err)
	}
	if recovered.Remaining != 599 || recovered.LastStatus != 200 || recovered.Attempts != 0 {
		t.Fatalf("expected recovered state to overwrite, got %+v", recovered)
	}
	if recovered.RetryAfter != nil || recovered.ThrottledUntil != nil {
		t.Fatalf("expected recovery to clear throttle markers, got %+v", recovered)
	}

	var rows int
	if err := client.DB().NewRaw(
		"SELECT COUNT(*) FROM pylon_rate_limit_states WHERE host = ? AND bucket = ?",
		"api.usepylon.com", "issues",
	).Scan(ctx, &rows); err != nil {
		t.Fatalf("count rate limit states: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected upserts to share one row per key, got %d", rows)
	}
}

func TestProcessor_SQLLedgerDedupesAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	registry := webhooks.NewRegistry()
	handled := 0
	if _, err := registry.On(webhooks.EventIssueNew, func(context.Context, webhooks.Event) (any, error) {
		handled++
		return "handled", nil
	}); err != nil {
		t.Fatalf("register handler: %v", err)
	}

	verifier := webhooks.NewSignatureVerifier(integrationWebhookSecret)
	pipeline := webhooks.NewPipeline(verifier, registry)

	firstLedger, err := sqlstore.NewWebhookDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new webhook delivery store: %v", err)
	}
	payload := issueEventPayload(t)
	headers := signedDeliveryHeaders("dlv_evt_1", payload, time.Now().UTC())

	receipt, err := webhooks.NewProcessor(pipeline, firstLedger).Process(ctx, payload, headers)
	if err != nil {
		t.Fatalf("process delivery: %v", err)
	}
	if !receipt.Accepted || receipt.StatusCode != 200 || receipt.EventType != webhooks.EventIssueNew {
		t.Fatalf("expected accepted issue_new receipt, got %+v", receipt)
	}
	if handled != 1 {
		t.Fatalf("expected one dispatch, got %d", handled)
	}

	secondLedger, err := sqlstore.NewWebhookDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new webhook delivery store: %v", err)
	}
	replay, err := webhooks.NewProcessor(pipeline, secondLedger).Process(ctx, payload, headers)
	if err != nil {
		t.Fatalf("process replayed delivery: %v", err)
	}
	if !replay.Accepted || replay.StatusCode != 200 {
		t.Fatalf("expected replay to acknowledge, got %+v", replay)
	}
	if deduped, _ := replay.Metadata["deduped"].(bool); !deduped {
		t.Fatalf("expected replay to dedupe, got metadata %v", replay.Metadata)
	}
	if handled != 1 {
		t.Fatalf("expected replay to skip dispatch, got %d", handled)
	}

	record, err := secondLedger.Get(ctx, "dlv_evt_1")
	if err != nil {
		t.Fatalf("get delivery record: %v", err)
	}
	if record.Status != webhooks.DeliveryStatusProcessed || record.Attempts != 1 {
		t.Fatalf("expected processed attempt 1, got status=%q attempts=%d", record.Status, record.Attempts)
	}
}

func issueEventPayload(t *testing.T) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"event_type":                 "issue_new",
		"issue_id":                   "issue_123",
		"issue_number":               42,
		"issue_title":                "Test Issue",
		"issue_team_name":            "Support",
		"issue_account_id":           "acc_123",
		"issue_account_name":         "Test Account",
		"issue_requester_email":      "user@example.com",
		"issue_requesteer_id":        "user_123",
		"issue_assignee_email":       "agent@example.com",
		"issue_assignee_id":          "agent_123",
		"issue_body":                 "This is a test issue",
		"issue_status":               "open",
		"issue_sf_type":              "support",
		"issue_last_message_sent_at": "2024-01-15T10:30:00Z",
		"issue_link":                 "https://app.usepylon.com/issues/issue_123",
		"issue_tags":                 []string{"billing", "urgent"},
		"issue_account_domains":      []string{"example.com"},
		"issue_attachment_urls":      []string{},
	})
	if err != nil {
		t.Fatalf("marshal event payload: %v", err)
	}
	return payload
}

func signedDeliveryHeaders(deliveryID string, payload []byte, at time.Time) map[string]string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	return map[string]string{
		webhooks.HeaderSignature:  webhooks.Sign(integrationWebhookSecret, timestamp, payload),
		webhooks.HeaderTimestamp:  timestamp,
		webhooks.HeaderDeliveryID: deliveryID,
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:pylon-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != migrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(migrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
