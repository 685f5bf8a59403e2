package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SyncConfig.Namespace != "jailbird" {
		t.Errorf("namespace = %q", cfg.SyncConfig.Namespace)
	}
	if cfg.SyncConfig.InstanceMode != "local" || cfg.SyncConfig.IsCloud() {
		t.Errorf("instance mode = %q", cfg.SyncConfig.InstanceMode)
	}
	if cfg.SyncConfig.Interval != 5*time.Second {
		t.Errorf("sync interval = %v", cfg.SyncConfig.Interval)
	}
	if cfg.ReplicationConfig.RetentionDays != 7 {
		t.Errorf("retention days = %d", cfg.ReplicationConfig.RetentionDays)
	}
	if cfg.RedisConfig.Address != "localhost:6379" {
		t.Errorf("redis address = %q", cfg.RedisConfig.Address)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SYNC_NAMESPACE", "testing")
	t.Setenv("INSTANCE_MODE", "cloud")
	t.Setenv("SYNC_INTERVAL", "30s")
	t.Setenv("RETENTION_DAYS", "14")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SyncConfig.Namespace != "testing" {
		t.Errorf("namespace = %q", cfg.SyncConfig.Namespace)
	}
	if !cfg.SyncConfig.IsCloud() {
		t.Error("instance mode override not applied")
	}
	if cfg.SyncConfig.Interval != 30*time.Second {
		t.Errorf("sync interval = %v", cfg.SyncConfig.Interval)
	}
	if cfg.ReplicationConfig.RetentionDays != 14 {
		t.Errorf("retention days = %d", cfg.ReplicationConfig.RetentionDays)
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	t.Setenv("INSTANCE_MODE", "hybrid")

	if _, err := Load(); err == nil {
		t.Error("expected error for unknown instance mode")
	}
}
