package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/any-hub/assetcache/internal/cache"
)

func TestActivateDeletesStaleGenerations(t *testing.T) {
	for _, kind := range []string{cache.BackendFS, cache.BackendSQLite} {
		t.Run(kind, func(t *testing.T) {
			backend, err := cache.NewBackend(kind, t.TempDir())
			if err != nil {
				t.Fatalf("backend error: %v", err)
			}
			t.Cleanup(func() { _ = backend.Close() })

			seedGeneration(t, backend, "v1")
			seedGeneration(t, backend, "v2")

			f := newFixture(t, "v2", backend)
			report := f.activate(t)

			if len(report.Found) != 2 {
				t.Fatalf("expected two generations before cleanup, got %v", report.Found)
			}
			if len(report.Deleted) != 1 || report.Deleted[0] != "v1" {
				t.Fatalf("expected v1 deleted, got %v", report.Deleted)
			}
			if len(report.Failed) != 0 {
				t.Fatalf("unexpected failures: %v", report.Failed)
			}

			remaining, err := f.ctrl.Generations(context.Background())
			if err != nil {
				t.Fatalf("generations error: %v", err)
			}
			if len(remaining) != 1 || remaining[0] != "v2" {
				t.Fatalf("only v2 should remain, got %v", remaining)
			}
			if !f.ctrl.Active() {
				t.Fatalf("controller should be active after activation")
			}
		})
	}
}

func TestActivateTwiceIsNoop(t *testing.T) {
	f := newFixture(t, "v2", nil)
	f.seed(t, testOrigin+"/index.html", "keep")
	f.activate(t)
	report := f.activate(t)
	if len(report.Deleted) != 0 {
		t.Fatalf("second activation should delete nothing, got %v", report.Deleted)
	}
	if _, err := f.store.Match(context.Background(), testOrigin+"/index.html"); err != nil {
		t.Fatalf("current generation must survive activation: %v", err)
	}
}

func TestActivateToleratesDeleteFailure(t *testing.T) {
	f := newFixture(t, "v2", nil)
	f.storage.Storage = &failingDelete{Storage: f.storage.Storage, names: []string{"v1", "v2", "v0"}}

	report, err := f.ctrl.Activate(context.Background())
	if err != nil {
		t.Fatalf("cleanup failure must not fail activation: %v", err)
	}
	if len(report.Failed) != 2 {
		t.Fatalf("expected two failed deletions, got %v", report.Failed)
	}
	if !f.ctrl.Active() {
		t.Fatalf("controller should still claim requests")
	}
}

func seedGeneration(t *testing.T, backend cache.Backend, generation string) {
	t.Helper()
	storage, err := backend.Storage("demo")
	if err != nil {
		t.Fatalf("storage error: %v", err)
	}
	store, err := storage.Open(context.Background(), generation)
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	if err := store.Put(context.Background(), testOrigin+"/", cache.Entry{Status: 200, Body: []byte(generation)}); err != nil {
		t.Fatalf("put error: %v", err)
	}
}

type failingDelete struct {
	cache.Storage
	names []string
}

func (s *failingDelete) Keys(context.Context) ([]string, error) {
	return s.names, nil
}

func (s *failingDelete) Delete(context.Context, string) (bool, error) {
	return false, errors.New("permission denied")
}
