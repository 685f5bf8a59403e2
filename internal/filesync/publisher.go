package filesync

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// debounceWindow collapses bursts of events for the same path. Editors and
// the account writer both touch files several times per save.
const debounceWindow = time.Second

// Publisher watches the local data tree and pushes JSON document changes
// into the shared store, announcing each on the sync or delete channel.
type Publisher struct {
	store    Store
	ns       Namespace
	dataPath string
	logger   zerolog.Logger

	watcher *fsnotify.Watcher

	mu           sync.Mutex
	lastModified map[string]time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPublisher creates a publisher over the given data root.
func NewPublisher(store Store, ns Namespace, dataPath string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		store:        store,
		ns:           ns,
		dataPath:     dataPath,
		logger:       logger.With().Str("component", "FilePublisher").Logger(),
		lastModified: make(map[string]time.Time),
		stopChan:     make(chan struct{}),
	}
}

// Start begins watching the data tree recursively. The directory is created
// if missing.
func (p *Publisher) Start() error {
	if err := os.MkdirAll(p.dataPath, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	p.watcher = watcher

	if err := p.watchTree(p.dataPath); err != nil {
		watcher.Close()
		return err
	}

	p.wg.Add(1)
	go p.eventLoop()

	p.logger.Info().Str("path", p.dataPath).Msg("File publisher started")
	return nil
}

// Stop ends the watch loop and waits for it to exit.
func (p *Publisher) Stop() {
	close(p.stopChan)
	if p.watcher != nil {
		p.watcher.Close()
	}
	p.wg.Wait()
	p.logger.Info().Msg("File publisher stopped")
}

// InitialSync publishes every JSON document currently on disk. Run at
// startup so the shared store reflects files written while the publisher
// was down.
func (p *Publisher) InitialSync(ctx context.Context) {
	count := 0
	err := filepath.WalkDir(p.dataPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".json") {
			return err
		}
		if err := p.SyncFile(ctx, path); err != nil {
			p.logger.Error().Err(err).Str("path", path).Msg("Initial sync failed for file")
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		p.logger.Error().Err(err).Msg("Initial sync walk failed")
	}
	p.logger.Info().Int("files", count).Msg("Initial sync completed")
}

// SyncFile reads one document, stores it under its path-derived key and
// publishes a sync message.
func (p *Publisher) SyncFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Reject files that are not valid JSON rather than replicating garbage.
	var doc json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	key := p.keyForPath(path)
	if err := p.store.Set(ctx, key, []byte(doc)); err != nil {
		return err
	}

	msg, err := json.Marshal(SyncMessage{
		Key:       key,
		Value:     doc,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := p.store.Publish(ctx, p.ns.SyncChannel(), msg); err != nil {
		return err
	}

	p.logger.Info().Str("key", key).Msg("Published file update")
	return nil
}

// publishDelete announces a removed document. The file is already gone, so
// only the key is sent; the subscriber owns store-side cleanup.
func (p *Publisher) publishDelete(ctx context.Context, path string) error {
	key := p.keyForPath(path)

	msg, err := json.Marshal(DeleteMessage{
		Key:       key,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := p.store.Publish(ctx, p.ns.DeleteChannel(), msg); err != nil {
		return err
	}

	p.logger.Info().Str("key", key).Msg("Published file delete")
	return nil
}

func (p *Publisher) keyForPath(path string) string {
	rel, err := filepath.Rel(p.dataPath, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		// Fall back to the bare file name when the path sits outside the
		// data root, e.g. after a rename across mounts.
		rel = filepath.Base(path)
	}
	return p.ns.KeyFor(rel)
}

// shouldProcess applies per-path debouncing.
func (p *Publisher) shouldProcess(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if last, ok := p.lastModified[path]; ok && now.Sub(last) < debounceWindow {
		return false
	}
	p.lastModified[path] = now
	return true
}

// watchTree registers the watcher on a directory and all subdirectories.
func (p *Publisher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return p.watcher.Add(path)
		}
		return nil
	})
}

func (p *Publisher) eventLoop() {
	defer p.wg.Done()

	ctx := context.Background()
	for {
		select {
		case <-p.stopChan:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			p.handleEvent(ctx, event)
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (p *Publisher) handleEvent(ctx context.Context, event fsnotify.Event) {
	// New directories must be added to the watch set; fsnotify is not
	// recursive on its own.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := p.watchTree(event.Name); err != nil {
				p.logger.Error().Err(err).Str("path", event.Name).Msg("Failed to watch new directory")
			}
			return
		}
	}

	if !strings.HasSuffix(event.Name, ".json") {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create):
		if !p.shouldProcess(event.Name) {
			return
		}
		if err := p.SyncFile(ctx, event.Name); err != nil {
			p.logger.Error().Err(err).Str("path", event.Name).Msg("Failed to sync file")
		}
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		if err := p.publishDelete(ctx, event.Name); err != nil {
			p.logger.Error().Err(err).Str("path", event.Name).Msg("Failed to publish delete")
		}
	}
}
