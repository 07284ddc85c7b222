package config

import (
	"path/filepath"
	"testing"
)

// memBackend is an in-memory Backend for tests.
type memBackend struct {
	data map[string]any
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string]any)}
}

func (b *memBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (b *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (b *memBackend) SetString(key, val string) error {
	b.data[key] = val
	return nil
}

func (b *memBackend) SetInt(key string, val int) error {
	b.data[key] = val
	return nil
}

func (b *memBackend) Delete(key string) error {
	delete(b.data, key)
	return nil
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 8765 {
		t.Errorf("port = %d, want 8765", cfg.Server.Port)
	}
	if !cfg.Sync.FileEnabled || !cfg.Sync.PushEnabled {
		t.Error("sync channels disabled by default")
	}
	if cfg.Sync.StorageLocation != "sync" {
		t.Errorf("storage location = %q, want sync", cfg.Sync.StorageLocation)
	}
	if filepath.Base(cfg.Sync.File) != "profiles-sync.json" {
		t.Errorf("sync file = %q", cfg.Sync.File)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Log.Level)
	}
}

func TestLoad_BackendOverrides(t *testing.T) {
	b := newMemBackend()
	b.data["server.port"] = 9999
	b.data["sync.file_enabled"] = "false"
	b.data["log.level"] = "debug"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Sync.FileEnabled {
		t.Error("file sync still enabled")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad_BadBoolKeepsDefault(t *testing.T) {
	b := newMemBackend()
	b.data["sync.push_enabled"] = "not-a-bool"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Sync.PushEnabled {
		t.Error("unparseable bool should leave the default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STYLIST_SERVER_PORT", "7777")
	t.Setenv("STYLIST_SYNC_PUSH_ENABLED", "false")
	t.Setenv("STYLIST_STORAGE_DATA_DIR", "/tmp/stylist-test")

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d, want env override 7777", cfg.Server.Port)
	}
	if cfg.Sync.PushEnabled {
		t.Error("push sync still enabled despite env override")
	}
	if cfg.Storage.DataDir != "/tmp/stylist-test" {
		t.Errorf("data dir = %q", cfg.Storage.DataDir)
	}
}

func TestLoad_EnvBeatsBackend(t *testing.T) {
	b := newMemBackend()
	b.data["server.port"] = 9999
	t.Setenv("STYLIST_SERVER_PORT", "7777")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d, env override should win over backend", cfg.Server.Port)
	}
}

func TestShowAll(t *testing.T) {
	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatal(err)
	}

	infos := ShowAll(cfg)
	if len(infos) != len(ValidKeys()) {
		t.Fatalf("ShowAll returned %d keys, want %d", len(infos), len(ValidKeys()))
	}
	seen := make(map[string]bool)
	for _, info := range infos {
		seen[info.Key] = true
		if info.EnvVar == "" {
			t.Errorf("key %s has no env var", info.Key)
		}
	}
	for _, k := range []string{"server.port", "sync.file", "log.level"} {
		if !seen[k] {
			t.Errorf("key %s missing from ShowAll", k)
		}
	}
}

func TestFileBackend_RoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	b := newFileBackend()
	if err := b.SetString("log.level", "debug"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := b.SetInt("server.port", 9999); err != nil {
		t.Fatalf("SetInt: %v", err)
	}

	// A fresh backend re-reads the file.
	b2 := newFileBackend()
	if v, ok, err := b2.GetString("log.level"); err != nil || !ok || v != "debug" {
		t.Errorf("GetString = %q, %v, %v", v, ok, err)
	}
	if v, ok, err := b2.GetInt("server.port"); err != nil || !ok || v != 9999 {
		t.Errorf("GetInt = %d, %v, %v", v, ok, err)
	}

	if err := b2.Delete("log.level"); err != nil {
		t.Fatal(err)
	}
	b3 := newFileBackend()
	if _, ok, _ := b3.GetString("log.level"); ok {
		t.Error("deleted key still present after reload")
	}
}

func TestSetKey_UnknownKey(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if err := SetKey("no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := SetKey("server.port", "not-a-number"); err == nil {
		t.Error("expected error for non-integer port")
	}
}
