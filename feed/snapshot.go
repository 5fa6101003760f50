// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jobfeed-foundation/jobfeed/lib/codec"
)

// Snapshot is the persisted session state: enough to restore the
// query, the active bucket, and the dedup epoch across restarts so a
// resumed session does not re-announce records the user already saw.
type Snapshot struct {
	Query   string              `cbor:"query"`
	Active  Bucket              `cbor:"active"`
	Seen    map[Bucket][]string `cbor:"seen"`
	SavedAt time.Time           `cbor:"saved_at"`
}

// TakeSnapshot captures the current session state.
func TakeSnapshot(store *Store, membership *Membership, now time.Time) Snapshot {
	return Snapshot{
		Query:   store.Query(),
		Active:  store.Active(),
		Seen:    membership.Seen(),
		SavedAt: now,
	}
}

// Apply restores the snapshot into the store and membership index.
// The bucket states themselves are not restored: record contents are
// refetched, only identity (what was seen) survives the restart.
func (s Snapshot) Apply(store *Store, membership *Membership) {
	store.SetQuery(s.Query)
	if s.Active.Valid() {
		store.SetActive(s.Active)
	}
	membership.Restore(s.Seen)
}

// SaveSnapshot writes the snapshot to path atomically: encode, write
// to a sibling temp file, fsync, rename. A crash mid-write leaves the
// previous snapshot intact.
func SaveSnapshot(path string, snapshot Snapshot) error {
	encoded, err := codec.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("feed: failed to encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("feed: failed to create snapshot directory: %w", err)
	}

	temp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("feed: failed to create snapshot temp file: %w", err)
	}
	tempName := temp.Name()
	defer os.Remove(tempName)

	if _, err := temp.Write(encoded); err != nil {
		temp.Close()
		return fmt.Errorf("feed: failed to write snapshot: %w", err)
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		return fmt.Errorf("feed: failed to sync snapshot: %w", err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("feed: failed to close snapshot temp file: %w", err)
	}

	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("feed: failed to install snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot from path. A missing file is not an
// error: it returns a zero snapshot and false.
func LoadSnapshot(path string) (Snapshot, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("feed: failed to read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := codec.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, false, fmt.Errorf("feed: failed to decode snapshot: %w", err)
	}
	return snapshot, true, nil
}
