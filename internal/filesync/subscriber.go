package filesync

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"trading-sync/internal/events"
)

// Subscriber listens on the sync and delete channels and mirrors documents
// into the local data tree. On sync it also records version metadata in the
// store, which the retention sweep later reads.
type Subscriber struct {
	client   *redis.Client
	store    Store
	ns       Namespace
	dataPath string
	bus      *events.EventBus // nil disables event publication
	logger   zerolog.Logger

	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// NewSubscriber creates a subscriber mirroring into dataPath. The client is
// used for the pub/sub subscription itself; data operations go through the
// Store wrapper.
func NewSubscriber(client *redis.Client, ns Namespace, dataPath string, bus *events.EventBus, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		client:   client,
		store:    NewRedisStore(client),
		ns:       ns,
		dataPath: dataPath,
		bus:      bus,
		logger:   logger.With().Str("component", "FileSubscriber").Logger(),
	}
}

// Start subscribes to both channels and begins applying messages.
func (s *Subscriber) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.dataPath, 0o755); err != nil {
		return err
	}

	s.pubsub = s.client.Subscribe(ctx, s.ns.SyncChannel(), s.ns.DeleteChannel())

	// Force the subscription onto the wire before reporting started.
	if _, err := s.pubsub.Receive(ctx); err != nil {
		s.pubsub.Close()
		return err
	}

	s.wg.Add(1)
	go s.listen()

	s.logger.Info().
		Str("sync_channel", s.ns.SyncChannel()).
		Str("delete_channel", s.ns.DeleteChannel()).
		Msg("File subscriber started")
	return nil
}

// Stop closes the subscription and waits for the listener to exit.
func (s *Subscriber) Stop() {
	if s.pubsub != nil {
		s.pubsub.Close()
	}
	s.wg.Wait()
	s.logger.Info().Msg("File subscriber stopped")
}

func (s *Subscriber) listen() {
	defer s.wg.Done()

	ctx := context.Background()
	for msg := range s.pubsub.Channel() {
		switch msg.Channel {
		case s.ns.SyncChannel():
			s.handleSync(ctx, []byte(msg.Payload))
		case s.ns.DeleteChannel():
			s.handleDelete(ctx, []byte(msg.Payload))
		}
	}
}

// handleSync applies one document update: store, metadata, then mirror.
func (s *Subscriber) handleSync(ctx context.Context, payload []byte) {
	var msg SyncMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Error().Err(err).Msg("Malformed sync message")
		return
	}
	if msg.Key == "" || len(msg.Value) == 0 {
		return
	}

	if err := s.store.Set(ctx, msg.Key, []byte(msg.Value)); err != nil {
		s.logger.Error().Err(err).Str("key", msg.Key).Msg("Failed to store document")
		return
	}

	version, err := s.store.Incr(ctx, VersionKey(msg.Key))
	if err != nil {
		s.logger.Error().Err(err).Str("key", msg.Key).Msg("Failed to bump version")
	}
	meta := map[string]interface{}{
		"last_sync": time.Now().Format(metadataTimeLayout),
		"version":   version,
	}
	if err := s.store.HSet(ctx, MetadataKey(msg.Key), meta); err != nil {
		s.logger.Error().Err(err).Str("key", msg.Key).Msg("Failed to write metadata")
	}

	if err := s.writeLocal(msg.Key, msg.Value); err != nil {
		s.logger.Error().Err(err).Str("key", msg.Key).Msg("Failed to write local file")
		return
	}

	if s.bus != nil {
		s.bus.PublishFileSynced(msg.Key)
	}
	s.logger.Info().Str("key", msg.Key).Int64("version", version).Msg("Synced document")
}

// handleDelete applies one deletion: store keys first, then the mirror.
func (s *Subscriber) handleDelete(ctx context.Context, payload []byte) {
	var msg DeleteMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Error().Err(err).Msg("Malformed delete message")
		return
	}
	if msg.Key == "" {
		return
	}

	if err := s.store.Del(ctx, msg.Key, MetadataKey(msg.Key), VersionKey(msg.Key)); err != nil {
		s.logger.Error().Err(err).Str("key", msg.Key).Msg("Failed to delete store keys")
	}

	if err := s.deleteLocal(msg.Key); err != nil {
		s.logger.Error().Err(err).Str("key", msg.Key).Msg("Failed to delete local file")
		return
	}

	if s.bus != nil {
		s.bus.PublishFileDeleted(msg.Key)
	}
	s.logger.Info().Str("key", msg.Key).Msg("Deleted document")
}

// writeLocal mirrors a document to disk as pretty-printed JSON, creating
// parent directories as needed.
func (s *Subscriber) writeLocal(key string, value json.RawMessage) error {
	return WriteDocument(s.dataPath, s.ns, key, value)
}

// deleteLocal removes the mirrored file and prunes empty parents.
func (s *Subscriber) deleteLocal(key string) error {
	return DeleteDocument(s.dataPath, s.ns, key)
}

// WriteDocument writes a store document to its mirrored path under dataPath.
func WriteDocument(dataPath string, ns Namespace, key string, value json.RawMessage) error {
	rel, ok := ns.RelPathFor(key)
	if !ok {
		return nil
	}
	path := filepath.Join(dataPath, rel)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	pretty, err := json.MarshalIndent(value, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, pretty, 0o644)
}

// DeleteDocument removes the mirrored file for a key, then walks upward
// removing now-empty parent directories until the data root or a non-empty
// directory is reached. A missing file is not an error.
func DeleteDocument(dataPath string, ns Namespace, key string) error {
	rel, ok := ns.RelPathFor(key)
	if !ok {
		return nil
	}
	path := filepath.Join(dataPath, rel)

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	root := filepath.Clean(dataPath)
	for dir := filepath.Dir(path); dir != root; dir = filepath.Dir(dir) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}
