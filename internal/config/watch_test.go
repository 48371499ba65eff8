package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func waitForModel(t *testing.T, store *Store, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if store.Current().Model == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("store never saw model %q, have %q", want, store.Current().Model)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "clusterconfig.json")
	if err := os.WriteFile(p, []byte(`{"model":"llama3"}`), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	store := NewStore(Normalize(Config{Model: "llama3"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := Watch(ctx, p, store, zerolog.Nop()); err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := os.WriteFile(p, []byte(`{"model":"mistral"}`), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	waitForModel(t, store, "mistral")
}

func TestWatchKeepsPreviousOnMalformed(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "clusterconfig.json")
	if err := os.WriteFile(p, []byte(`{"model":"llama3"}`), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	store := NewStore(Normalize(Config{Model: "llama3", MaxInstances: 7}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := Watch(ctx, p, store, zerolog.Nop()); err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := os.WriteFile(p, []byte(`{malformed`), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	// Give the debounce and reload a chance to run, then confirm the
	// previous snapshot survived.
	time.Sleep(600 * time.Millisecond)
	cur := store.Current()
	if cur.Model != "llama3" || cur.MaxInstances != 7 {
		t.Fatalf("previous snapshot lost on malformed reload: %+v", cur)
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "clusterconfig.json")
	if err := os.WriteFile(p, []byte(`{"model":"llama3"}`), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	store := NewStore(Normalize(Config{Model: "llama3"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := Watch(ctx, p, store, zerolog.Nop()); err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := os.WriteFile(filepath.Join(d, "other.json"), []byte(`{"model":"x"}`), 0o644); err != nil {
		t.Fatalf("write sibling: %v", err)
	}
	time.Sleep(400 * time.Millisecond)
	if store.Current().Model != "llama3" {
		t.Fatalf("sibling file write changed the store")
	}
}
