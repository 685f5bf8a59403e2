// Package filesync replicates a tree of JSON account documents between
// instances through the shared store: a filesystem watcher publishes
// changes, a subscriber mirrors them, and periodic sweeps reconcile the two
// and expire stale entries.
package filesync

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

// Namespace binds key and channel naming for one replication domain.
type Namespace struct {
	prefix        string // "<ns>:account:"
	syncChannel   string
	deleteChannel string
	ordersKey     string // the order hash shares the prefix and must be skipped
}

// NewNamespace builds the fixed key and channel names for a namespace.
func NewNamespace(ns string) Namespace {
	return Namespace{
		prefix:        fmt.Sprintf("%s:account:", ns),
		syncChannel:   fmt.Sprintf("%s:sync", ns),
		deleteChannel: fmt.Sprintf("%s:delete", ns),
		ordersKey:     fmt.Sprintf("%s:account:orders", ns),
	}
}

// SyncChannel returns the pub/sub channel carrying document updates.
func (n Namespace) SyncChannel() string { return n.syncChannel }

// DeleteChannel returns the pub/sub channel carrying deletions.
func (n Namespace) DeleteChannel() string { return n.deleteChannel }

// Pattern returns the key glob matching every replicated document.
func (n Namespace) Pattern() string { return n.prefix + "*" }

// KeyFor maps a path relative to the data root onto its store key. Path
// separators are normalized to forward slashes so keys match across
// operating systems.
func (n Namespace) KeyFor(relPath string) string {
	return n.prefix + filepath.ToSlash(relPath)
}

// RelPathFor maps a store key back to a filesystem-relative path. The
// second return is false for keys outside this namespace, for metadata or
// version side keys, for the shared order hash, and for keys that would
// escape the data root.
func (n Namespace) RelPathFor(key string) (string, bool) {
	if !strings.HasPrefix(key, n.prefix) || key == n.ordersKey {
		return "", false
	}
	if strings.HasSuffix(key, ":metadata") || strings.HasSuffix(key, ":version") {
		return "", false
	}
	rel := filepath.FromSlash(strings.TrimPrefix(key, n.prefix))
	rel = filepath.Clean(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", false
	}
	return rel, true
}

// MetadataKey returns the side key holding last_sync and version for a
// document key.
func MetadataKey(key string) string { return key + ":metadata" }

// VersionKey returns the side key holding the version counter for a
// document key.
func VersionKey(key string) string { return key + ":version" }

// metadataTimeLayout is the last_sync timestamp format in metadata hashes.
const metadataTimeLayout = "2006-01-02 15:04:05"

// SyncMessage announces a created or updated document.
type SyncMessage struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Timestamp string          `json:"timestamp"`
}

// DeleteMessage announces a removed document. The body is gone by the time
// the event fires, so only the key travels.
type DeleteMessage struct {
	Key       string `json:"key"`
	Timestamp string `json:"timestamp"`
}
