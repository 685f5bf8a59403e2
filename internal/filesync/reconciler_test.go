package filesync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

type pubMsg struct {
	channel string
	payload []byte
}

// fakeDocStore is an in-memory Store.
type fakeDocStore struct {
	mu        sync.Mutex
	docs      map[string][]byte
	counters  map[string]int64
	hashes    map[string]map[string]string
	published []pubMsg
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{
		docs:     make(map[string][]byte),
		counters: make(map[string]int64),
		hashes:   make(map[string]map[string]string),
	}
}

func (f *fakeDocStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.docs[key]
	if !ok {
		return nil, errors.New("key not found")
	}
	return v, nil
}

func (f *fakeDocStore) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[key] = append([]byte(nil), value...)
	return nil
}

func (f *fakeDocStore) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.docs, k)
		delete(f.counters, k)
		delete(f.hashes, k)
	}
	return nil
}

func (f *fakeDocStore) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key]++
	return f.counters[key], nil
}

func (f *fakeDocStore) HSet(ctx context.Context, key string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = fmt.Sprintf("%v", v)
	}
	return nil
}

func (f *fakeDocStore) HGet(ctx context.Context, key, field string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.hashes[key]; ok {
		if v, ok := h[field]; ok {
			return v, nil
		}
	}
	return "", errors.New("field not found")
}

func (f *fakeDocStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.docs {
		if matchPattern(pattern, k) {
			keys = append(keys, k)
		}
	}
	for k := range f.counters {
		if matchPattern(pattern, k) {
			keys = append(keys, k)
		}
	}
	for k := range f.hashes {
		if matchPattern(pattern, k) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeDocStore) Publish(ctx context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, pubMsg{channel: channel, payload: append([]byte(nil), payload...)})
	return nil
}

func (f *fakeDocStore) publishedOn(channel string) []pubMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []pubMsg
	for _, m := range f.published {
		if m.channel == channel {
			out = append(out, m)
		}
	}
	return out
}

// matchPattern supports the single-star globs the sweeps use.
func matchPattern(pattern, key string) bool {
	i := strings.Index(pattern, "*")
	if i < 0 {
		return pattern == key
	}
	return strings.HasPrefix(key, pattern[:i]) && strings.HasSuffix(key, pattern[i+1:])
}

func newTestReconciler(store Store, dataPath string, publisher *Publisher, cfg ReconcilerConfig) *Reconciler {
	return NewReconciler(store, NewNamespace("jailbird"), dataPath, publisher, cfg, zerolog.Nop())
}

func TestReconcileRestoresMissingFiles(t *testing.T) {
	root := t.TempDir()
	ns := NewNamespace("jailbird")
	store := newFakeDocStore()

	key := ns.KeyFor(filepath.Join("accounts", "etf.json"))
	store.docs[key] = []byte(`{"cash":100.5}`)

	r := newTestReconciler(store, root, nil, ReconcilerConfig{})
	r.Reconcile(context.Background())

	raw, err := os.ReadFile(filepath.Join(root, "accounts", "etf.json"))
	if err != nil {
		t.Fatalf("file not restored from store: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("restored file not valid JSON: %v", err)
	}
	if doc["cash"] != 100.5 {
		t.Errorf("cash = %v", doc["cash"])
	}
}

func TestReconcileAuthoritativeLocalRemovesOrphans(t *testing.T) {
	root := t.TempDir()
	ns := NewNamespace("jailbird")
	store := newFakeDocStore()

	key := ns.KeyFor(filepath.Join("accounts", "ghost.json"))
	store.docs[key] = []byte(`{"cash":1}`)
	store.counters[VersionKey(key)] = 3
	store.hashes[MetadataKey(key)] = map[string]string{"last_sync": time.Now().Format(metadataTimeLayout)}

	r := newTestReconciler(store, root, nil, ReconcilerConfig{AuthoritativeLocal: true})
	r.Reconcile(context.Background())

	if _, ok := store.docs[key]; ok {
		t.Error("orphaned store entry survived")
	}
	if _, ok := store.counters[VersionKey(key)]; ok {
		t.Error("version counter survived")
	}
	if _, ok := store.hashes[MetadataKey(key)]; ok {
		t.Error("metadata hash survived")
	}

	deletes := store.publishedOn(ns.DeleteChannel())
	if len(deletes) != 1 {
		t.Fatalf("expected 1 delete announcement, got %d", len(deletes))
	}
	var msg DeleteMessage
	if err := json.Unmarshal(deletes[0].payload, &msg); err != nil {
		t.Fatalf("bad delete message: %v", err)
	}
	if msg.Key != key {
		t.Errorf("announced key = %s, want %s", msg.Key, key)
	}

	if _, err := os.Stat(filepath.Join(root, "accounts", "ghost.json")); !os.IsNotExist(err) {
		t.Error("file was restored despite authoritative-local policy")
	}
}

func TestReconcilePushesLocalOnlyFiles(t *testing.T) {
	root := t.TempDir()
	ns := NewNamespace("jailbird")
	store := newFakeDocStore()

	dir := filepath.Join(root, "accounts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "etf.json"), []byte(`{"cash":7}`), 0o644); err != nil {
		t.Fatal(err)
	}

	publisher := NewPublisher(store, ns, root, zerolog.Nop())
	r := newTestReconciler(store, root, publisher, ReconcilerConfig{})
	r.Reconcile(context.Background())

	key := ns.KeyFor(filepath.Join("accounts", "etf.json"))
	if _, ok := store.docs[key]; !ok {
		t.Error("local-only file was not pushed to the store")
	}
	if len(store.publishedOn(ns.SyncChannel())) != 1 {
		t.Error("no sync announcement for the pushed file")
	}
}

func TestReconcileWithoutPublisherLeavesLocalFiles(t *testing.T) {
	root := t.TempDir()
	store := newFakeDocStore()

	dir := filepath.Join(root, "accounts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "etf.json")
	if err := os.WriteFile(path, []byte(`{"cash":7}`), 0o644); err != nil {
		t.Fatal(err)
	}

	r := newTestReconciler(store, root, nil, ReconcilerConfig{})
	r.Reconcile(context.Background())

	if len(store.docs) != 0 {
		t.Errorf("mirror-only instance pushed files: %v", store.docs)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("local file disturbed: %v", err)
	}
}

func TestCleanupExpiredPurgesStaleDocuments(t *testing.T) {
	root := t.TempDir()
	ns := NewNamespace("jailbird")
	store := newFakeDocStore()

	stale := ns.KeyFor(filepath.Join("accounts", "old.json"))
	store.docs[stale] = []byte(`{"cash":1}`)
	store.counters[VersionKey(stale)] = 2
	store.hashes[MetadataKey(stale)] = map[string]string{
		"last_sync": time.Now().AddDate(0, 0, -10).Format(metadataTimeLayout),
	}
	if err := WriteDocument(root, ns, stale, json.RawMessage(`{"cash":1}`)); err != nil {
		t.Fatal(err)
	}

	fresh := ns.KeyFor(filepath.Join("accounts", "new.json"))
	store.docs[fresh] = []byte(`{"cash":2}`)
	store.hashes[MetadataKey(fresh)] = map[string]string{
		"last_sync": time.Now().Format(metadataTimeLayout),
	}

	r := newTestReconciler(store, root, nil, ReconcilerConfig{})
	r.CleanupExpired(context.Background())

	if _, ok := store.docs[stale]; ok {
		t.Error("stale document survived the retention sweep")
	}
	if _, err := os.Stat(filepath.Join(root, "accounts", "old.json")); !os.IsNotExist(err) {
		t.Error("stale mirror file survived")
	}
	if len(store.publishedOn(ns.DeleteChannel())) != 1 {
		t.Error("stale purge was not announced")
	}

	if _, ok := store.docs[fresh]; !ok {
		t.Error("fresh document purged")
	}
}
