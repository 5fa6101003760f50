// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	store := NewStore(context.Background(), slog.Default())
	t.Cleanup(store.Close)
	membership := NewMembership()

	store.SetQuery("golang")
	store.SetActive(BucketMaybe)
	membership.Add(BucketMain, "r1")
	membership.Add(BucketMaybe, "r2")
	membership.AddLive("r3")

	path := filepath.Join(t.TempDir(), "state", "session.snapshot")
	snapshot := TakeSnapshot(store, membership, epochTest)
	if err := SaveSnapshot(path, snapshot); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	loaded, ok, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if !ok {
		t.Fatal("expected snapshot to exist")
	}
	if loaded.Query != "golang" || loaded.Active != BucketMaybe {
		t.Errorf("unexpected snapshot: %+v", loaded)
	}
	if !loaded.SavedAt.Equal(epochTest) {
		t.Errorf("expected SavedAt %v, got %v", epochTest, loaded.SavedAt)
	}

	restoredStore := NewStore(context.Background(), slog.Default())
	t.Cleanup(restoredStore.Close)
	restoredMembership := NewMembership()
	loaded.Apply(restoredStore, restoredMembership)

	if restoredStore.Query() != "golang" || restoredStore.Active() != BucketMaybe {
		t.Errorf("store not restored: query=%q active=%s", restoredStore.Query(), restoredStore.Active())
	}
	if !restoredMembership.Contains(BucketMain, "r1") {
		t.Error("r1 not restored into main")
	}
	if !restoredMembership.Contains(BucketMaybe, "r2") {
		t.Error("r2 not restored into maybe")
	}
	for _, bucket := range AllBuckets {
		if !restoredMembership.Contains(bucket, "r3") {
			t.Errorf("live record r3 not restored into %s", bucket)
		}
	}
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	_, ok, err := LoadSnapshot(filepath.Join(t.TempDir(), "absent.snapshot"))
	if err != nil {
		t.Fatalf("missing snapshot should not be an error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a missing snapshot")
	}
}

func TestLoadSnapshotCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.snapshot")
	if err := os.WriteFile(path, []byte("not cbor at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadSnapshot(path); err == nil {
		t.Fatal("expected error for corrupt snapshot")
	}
}

func TestSaveSnapshotReplacesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.snapshot")
	if err := SaveSnapshot(path, Snapshot{Query: "first", SavedAt: epochTest}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := SaveSnapshot(path, Snapshot{Query: "second", SavedAt: epochTest}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	loaded, ok, err := LoadSnapshot(path)
	if err != nil || !ok {
		t.Fatalf("LoadSnapshot: ok=%v err=%v", ok, err)
	}
	if loaded.Query != "second" {
		t.Errorf("expected the replacement snapshot, got %q", loaded.Query)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the snapshot file, found %d entries", len(entries))
	}
}
