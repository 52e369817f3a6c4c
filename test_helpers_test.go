package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/any-hub/assetcache/internal/cache"
)

// configFixture 指向 internal/config/testdata，go test 以包目录为工作目录。
func configFixture(name string) string {
	return filepath.Join("internal", "config", "testdata", name)
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "assetcache.toml")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return file
}

// seedGenerations 为 app 预先写入若干缓存代，每代一个条目。
func seedGenerations(t *testing.T, kind, storagePath, app string, generations ...string) {
	t.Helper()
	backend, err := cache.NewBackend(kind, storagePath)
	if err != nil {
		t.Fatalf("backend error: %v", err)
	}
	defer backend.Close()
	storage, err := backend.Storage(app)
	if err != nil {
		t.Fatalf("storage error: %v", err)
	}
	for _, gen := range generations {
		store, err := storage.Open(context.Background(), gen)
		if err != nil {
			t.Fatalf("open error: %v", err)
		}
		if err := store.Put(context.Background(), "https://demo.local/", cache.Entry{Status: 200, Body: []byte(gen)}); err != nil {
			t.Fatalf("put error: %v", err)
		}
	}
}
