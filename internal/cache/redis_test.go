package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"sheettracker/api/internal/sheet"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisPersister, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	p, err := NewRedisPersister("redis://"+s.Addr(), "", ttl)
	if err != nil {
		t.Fatalf("failed to create redis persister: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p, s
}

func TestNewRedisPersister(t *testing.T) {
	p, _ := setupTestRedis(t, 0)

	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if p.Key() != DefaultKey {
		t.Errorf("expected default key, got %s", p.Key())
	}
}

func TestNewRedisPersisterBadURL(t *testing.T) {
	if _, err := NewRedisPersister("://nope", "", 0); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestLoadEmptyIsNoState(t *testing.T) {
	p, _ := setupTestRedis(t, 0)

	_, err := p.Load(context.Background())
	if !errors.Is(err, sheet.ErrNoState) {
		t.Fatalf("expected ErrNoState, got %v", err)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	p, s := setupTestRedis(t, 0)
	ctx := context.Background()

	doc := []byte(`{"meta":{"name":"Sheet"},"topics":[]}`)
	if err := p.Save(ctx, doc); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(got) != string(doc) {
		t.Errorf("expected %s, got %s", doc, got)
	}
	if ttl := s.TTL(DefaultKey); ttl != 0 {
		t.Errorf("expected no ttl, got %v", ttl)
	}
}

func TestSavedDocumentExpires(t *testing.T) {
	p, s := setupTestRedis(t, time.Minute)
	ctx := context.Background()

	if err := p.Save(ctx, []byte(`{}`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	s.FastForward(2 * time.Minute)

	if _, err := p.Load(ctx); !errors.Is(err, sheet.ErrNoState) {
		t.Fatalf("expected expired document to read as ErrNoState, got %v", err)
	}
}

func TestInvalidate(t *testing.T) {
	p, _ := setupTestRedis(t, 0)
	ctx := context.Background()

	if err := p.Save(ctx, []byte(`{}`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := p.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := p.Load(ctx); !errors.Is(err, sheet.ErrNoState) {
		t.Fatalf("expected ErrNoState after invalidate, got %v", err)
	}
	if err := p.Invalidate(ctx); err != nil {
		t.Errorf("invalidating a missing key should not error: %v", err)
	}
}

func TestStoreRecoversFromRedisOutage(t *testing.T) {
	p, s := setupTestRedis(t, 0)
	ctx := context.Background()

	st, err := sheet.Open(ctx, p)
	if err != nil {
		t.Fatalf("sheet.Open failed: %v", err)
	}
	topic, err := st.CreateTopic(ctx, sheet.TopicInput{Name: "Arrays"})
	if err != nil {
		t.Fatalf("CreateTopic failed: %v", err)
	}

	s.SetError("LOADING")
	if _, err := st.RenameTopic(ctx, topic.ID, "Hashing"); !errors.Is(err, sheet.ErrPersistence) {
		t.Fatalf("expected persistence error while redis fails, got %v", err)
	}
	if got := st.Sheet().Topics[0].Name; got != "Arrays" {
		t.Fatalf("expected rollback to keep Arrays, got %s", got)
	}

	s.SetError("")
	if _, err := st.RenameTopic(ctx, topic.ID, "Hashing"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	reopened, err := sheet.Open(ctx, NewRedisPersisterWithClient(p.client, "", 0))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := reopened.Sheet().Topics[0].Name; got != "Hashing" {
		t.Fatalf("expected persisted rename, got %s", got)
	}
}
