package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/LexiconIndonesia/covercraft-service/common/config"
	"github.com/LexiconIndonesia/covercraft-service/common/redis"
	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
)

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v; want absent", ok, err)
	}

	if err := store.Set(ctx, "authToken", []byte("first")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, "authToken", []byte("second")); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	got, ok, err := store.Get(ctx, "authToken")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if string(got) != "second" {
		t.Errorf("Get() = %q, want %q", got, "second")
	}

	if err := store.Set(ctx, "userData", []byte(`{"id":"u1"}`)); err != nil {
		t.Fatal(err)
	}
	if err := store.Remove(ctx, "authToken"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok, _ := store.Get(ctx, "authToken"); ok {
		t.Error("authToken should be removed")
	}
	if _, ok, _ := store.Get(ctx, "userData"); !ok {
		t.Error("userData should survive removing another key")
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, ok, _ := store.Get(ctx, "userData"); ok {
		t.Error("Clear() should remove every key")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	value := []byte("abc")
	if err := store.Set(ctx, "k", value); err != nil {
		t.Fatal(err)
	}
	value[0] = 'z'

	got, _, _ := store.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value mutated through caller slice: %q", got)
	}
}

func TestSQLiteStore(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer db.Close()

	exerciseStore(t, NewSQLiteStore(db, ScopeLocal))
}

func TestSQLiteScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	local := NewSQLiteStore(db, ScopeLocal)
	sync := NewSQLiteStore(db, ScopeSync)

	if err := local.Set(ctx, "settings", []byte("local")); err != nil {
		t.Fatal(err)
	}
	if err := sync.Set(ctx, "settings", []byte("sync")); err != nil {
		t.Fatal(err)
	}
	if err := local.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	got, ok, err := sync.Get(ctx, "settings")
	if err != nil || !ok || string(got) != "sync" {
		t.Errorf("sync scope = %q ok %v err %v; clearing local must not touch sync", got, ok, err)
	}
}

func newMiniredis(t *testing.T) *redis.RedisClient {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.Wrap(redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()}))
}

func TestRedisStore(t *testing.T) {
	client := newMiniredis(t)
	defer client.Close()

	exerciseStore(t, NewRedisStore(client, "covercraft", ScopeLocal))
}

func TestRedisStoreClearKeepsOtherScope(t *testing.T) {
	ctx := context.Background()
	client := newMiniredis(t)
	defer client.Close()

	local := NewRedisStore(client, "covercraft", ScopeLocal)
	sync := NewRedisStore(client, "covercraft", ScopeSync)

	if err := local.Set(ctx, "lastExtractedJob", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	if err := sync.Set(ctx, "settings", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	if err := local.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := sync.Get(ctx, "settings"); !ok {
		t.Error("clearing the local scope removed a sync key")
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	type settings struct {
		Theme string `json:"theme"`
	}

	got, err := GetJSON[settings](ctx, store, "settings")
	if err != nil {
		t.Fatal(err)
	}
	if got.IsPresent() {
		t.Error("expected absent value")
	}

	if err := SetJSON(ctx, store, "settings", settings{Theme: "dark"}); err != nil {
		t.Fatal(err)
	}
	got, err = GetJSON[settings](ctx, store, "settings")
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := got.Get(); !ok || v.Theme != "dark" {
		t.Errorf("GetJSON() = %v, want dark theme", got)
	}

	if err := store.Set(ctx, "broken", []byte("{")); err != nil {
		t.Fatal(err)
	}
	if _, err := GetJSON[settings](ctx, store, "broken"); err == nil {
		t.Error("expected decode error")
	}
}

func TestStorageClearAll(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(NewMemory(), NewMemory())

	_ = s.Scope(ScopeLocal).Set(ctx, "authToken", []byte("t"))
	_ = s.Scope(ScopeSync).Set(ctx, "settings", []byte("{}"))

	if err := s.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Local.Get(ctx, "authToken"); ok {
		t.Error("local scope not cleared")
	}
	if _, ok, _ := s.Sync.Get(ctx, "settings"); ok {
		t.Error("sync scope not cleared")
	}
}

func TestOpen(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.LocalBackend = config.BackendSQLite
	cfg.Storage.SyncBackend = config.BackendMemory
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "covercraft.db")

	s, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if _, ok := s.Local.(*SQLiteStore); !ok {
		t.Errorf("local store = %T, want *SQLiteStore", s.Local)
	}
	if _, ok := s.Sync.(*Memory); !ok {
		t.Errorf("sync store = %T, want *Memory", s.Sync)
	}

	cfg.Storage.SyncBackend = "etcd"
	if _, err := Open(cfg, nil); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Open() error = %v, want ErrUnknownBackend", err)
	}

	cfg.Storage.SyncBackend = config.BackendRedis
	if _, err := Open(cfg, nil); err == nil {
		t.Error("expected error for redis backend without client")
	}
}
