package filesync

import (
	"path/filepath"
	"testing"
)

func TestKeyForRelPathRoundTrip(t *testing.T) {
	ns := NewNamespace("jailbird")

	key := ns.KeyFor(filepath.Join("accounts", "etf.json"))
	if key != "jailbird:account:accounts/etf.json" {
		t.Errorf("KeyFor = %q", key)
	}

	rel, ok := ns.RelPathFor(key)
	if !ok {
		t.Fatal("RelPathFor rejected a valid key")
	}
	if rel != filepath.Join("accounts", "etf.json") {
		t.Errorf("RelPathFor = %q", rel)
	}
}

func TestChannelNames(t *testing.T) {
	ns := NewNamespace("jailbird")
	if ns.SyncChannel() != "jailbird:sync" {
		t.Errorf("SyncChannel = %q", ns.SyncChannel())
	}
	if ns.DeleteChannel() != "jailbird:delete" {
		t.Errorf("DeleteChannel = %q", ns.DeleteChannel())
	}
	if ns.Pattern() != "jailbird:account:*" {
		t.Errorf("Pattern = %q", ns.Pattern())
	}
}

func TestRelPathForRejections(t *testing.T) {
	ns := NewNamespace("jailbird")

	cases := []string{
		"other:account:file.json",                 // wrong namespace
		"jailbird:account:orders",                 // the shared order hash
		"jailbird:account:accounts/a.json:metadata", // metadata side key
		"jailbird:account:accounts/a.json:version",  // version side key
		"jailbird:account:../escape.json",           // traversal
		"jailbird:account:..",                       // bare traversal
		"jailbird:sync",                             // a channel, not a key
	}
	for _, key := range cases {
		if rel, ok := ns.RelPathFor(key); ok {
			t.Errorf("RelPathFor(%q) accepted as %q", key, rel)
		}
	}
}

func TestSideKeys(t *testing.T) {
	key := "jailbird:account:accounts/etf.json"
	if MetadataKey(key) != key+":metadata" {
		t.Errorf("MetadataKey = %q", MetadataKey(key))
	}
	if VersionKey(key) != key+":version" {
		t.Errorf("VersionKey = %q", VersionKey(key))
	}
}
