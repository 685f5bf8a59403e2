package filesync

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	// DefaultReconcileInterval is how often the consistency sweep runs.
	DefaultReconcileInterval = 5 * time.Minute
	// DefaultCleanupInterval is how often the retention sweep runs.
	DefaultCleanupInterval = time.Hour
	// DefaultRetentionDays is how long replicated documents are kept
	// without a fresh sync before being purged.
	DefaultRetentionDays = 7
)

// ReconcilerConfig tunes the periodic sweeps.
type ReconcilerConfig struct {
	ReconcileInterval time.Duration
	CleanupInterval   time.Duration
	RetentionDays     int

	// AuthoritativeLocal makes the local tree the source of truth: store
	// entries with no matching file are deleted everywhere instead of
	// being restored to disk.
	AuthoritativeLocal bool
}

// Reconciler periodically compares the local data tree against the shared
// store and repairs drift in whichever direction the configuration allows.
// It also expires documents whose metadata shows no sync within the
// retention window.
type Reconciler struct {
	store    Store
	ns       Namespace
	dataPath string
	cfg      ReconcilerConfig
	logger   zerolog.Logger

	// publisher is set in local mode so files missing from the store can
	// be pushed. Nil on mirror-only instances.
	publisher *Publisher

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewReconciler creates a reconciler. publisher may be nil when the
// instance only mirrors and never originates documents.
func NewReconciler(store Store, ns Namespace, dataPath string, publisher *Publisher, cfg ReconcilerConfig, logger zerolog.Logger) *Reconciler {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = DefaultReconcileInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	return &Reconciler{
		store:     store,
		ns:        ns,
		dataPath:  dataPath,
		cfg:       cfg,
		logger:    logger.With().Str("component", "FileReconciler").Logger(),
		publisher: publisher,
		stopChan:  make(chan struct{}),
	}
}

// Start runs one sweep immediately and then loops on the configured
// intervals until Stop is called.
func (r *Reconciler) Start(ctx context.Context) {
	r.Reconcile(ctx)

	r.wg.Add(1)
	go r.loop()

	r.logger.Info().
		Dur("reconcile_interval", r.cfg.ReconcileInterval).
		Dur("cleanup_interval", r.cfg.CleanupInterval).
		Int("retention_days", r.cfg.RetentionDays).
		Bool("authoritative_local", r.cfg.AuthoritativeLocal).
		Msg("Reconciler started")
}

// Stop ends the sweep loop.
func (r *Reconciler) Stop() {
	close(r.stopChan)
	r.wg.Wait()
	r.logger.Info().Msg("Reconciler stopped")
}

func (r *Reconciler) loop() {
	defer r.wg.Done()

	reconcile := time.NewTicker(r.cfg.ReconcileInterval)
	defer reconcile.Stop()
	cleanup := time.NewTicker(r.cfg.CleanupInterval)
	defer cleanup.Stop()

	ctx := context.Background()
	for {
		select {
		case <-r.stopChan:
			return
		case <-reconcile.C:
			r.Reconcile(ctx)
		case <-cleanup.C:
			r.CleanupExpired(ctx)
		}
	}
}

// Reconcile compares store keys against local files and repairs both
// directions of drift in one pass.
func (r *Reconciler) Reconcile(ctx context.Context) {
	storeKeys, err := r.storeKeys(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Reconcile aborted, store scan failed")
		return
	}
	localFiles, err := r.localFiles()
	if err != nil {
		r.logger.Error().Err(err).Msg("Reconcile aborted, local walk failed")
		return
	}

	restored, removed, pushed := 0, 0, 0

	for key, rel := range storeKeys {
		if _, ok := localFiles[rel]; ok {
			continue
		}
		if r.cfg.AuthoritativeLocal {
			if err := r.removeEverywhere(ctx, key); err != nil {
				r.logger.Error().Err(err).Str("key", key).Msg("Failed to remove orphaned store entry")
				continue
			}
			removed++
		} else {
			if err := r.restoreFromStore(ctx, key); err != nil {
				r.logger.Error().Err(err).Str("key", key).Msg("Failed to restore file from store")
				continue
			}
			restored++
		}
	}

	if r.publisher != nil {
		for rel, path := range localFiles {
			if _, ok := storeKeys[r.ns.KeyFor(rel)]; ok {
				continue
			}
			if err := r.publisher.SyncFile(ctx, path); err != nil {
				r.logger.Error().Err(err).Str("path", path).Msg("Failed to push unsynced file")
				continue
			}
			pushed++
		}
	}

	if restored > 0 || removed > 0 || pushed > 0 {
		r.logger.Info().
			Int("restored", restored).
			Int("removed", removed).
			Int("pushed", pushed).
			Msg("Reconcile repaired drift")
	}
}

// CleanupExpired purges documents whose last sync is older than the
// retention window, both from the store and from the local mirror.
func (r *Reconciler) CleanupExpired(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -r.cfg.RetentionDays)
	purged := 0

	metaKeys, err := r.store.Keys(ctx, r.ns.Pattern()+":metadata")
	if err != nil {
		r.logger.Error().Err(err).Msg("Cleanup scan failed")
		return
	}
	for _, metaKey := range metaKeys {
		lastSync, err := r.store.HGet(ctx, metaKey, "last_sync")
		if err != nil {
			continue
		}
		ts, err := time.ParseInLocation(metadataTimeLayout, lastSync, time.Local)
		if err != nil || ts.After(cutoff) {
			continue
		}

		key := strings.TrimSuffix(metaKey, ":metadata")
		if err := r.removeEverywhere(ctx, key); err != nil {
			r.logger.Error().Err(err).Str("key", key).Msg("Failed to purge expired document")
			continue
		}
		purged++
	}

	if purged > 0 {
		r.logger.Info().Int("purged", purged).Msg("Expired documents purged")
	}
}

// storeKeys returns every replicated document key mapped to its relative
// mirror path. Side keys and the shared order hash are skipped.
func (r *Reconciler) storeKeys(ctx context.Context) (map[string]string, error) {
	all, err := r.store.Keys(ctx, r.ns.Pattern())
	if err != nil {
		return nil, err
	}
	keys := make(map[string]string)
	for _, key := range all {
		if rel, ok := r.ns.RelPathFor(key); ok {
			keys[key] = rel
		}
	}
	return keys, nil
}

// localFiles returns every JSON file under the data root, relative path to
// absolute path.
func (r *Reconciler) localFiles() (map[string]string, error) {
	files := make(map[string]string)
	err := filepath.WalkDir(r.dataPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		rel, err := filepath.Rel(r.dataPath, path)
		if err != nil {
			return nil
		}
		files[rel] = path
		return nil
	})
	return files, err
}

// restoreFromStore writes the store's copy of a document back to disk.
func (r *Reconciler) restoreFromStore(ctx context.Context, key string) error {
	value, err := r.store.Get(ctx, key)
	if err != nil {
		return err
	}
	return WriteDocument(r.dataPath, r.ns, key, json.RawMessage(value))
}

// removeEverywhere deletes a document from the store, announces the
// deletion so other instances drop their copies, and removes any local
// mirror file.
func (r *Reconciler) removeEverywhere(ctx context.Context, key string) error {
	if err := r.store.Del(ctx, key, MetadataKey(key), VersionKey(key)); err != nil {
		return err
	}

	msg, err := json.Marshal(DeleteMessage{
		Key:       key,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if err == nil {
		if err := r.store.Publish(ctx, r.ns.DeleteChannel(), msg); err != nil {
			r.logger.Error().Err(err).Str("key", key).Msg("Failed to announce deletion")
		}
	}

	return DeleteDocument(r.dataPath, r.ns, key)
}
