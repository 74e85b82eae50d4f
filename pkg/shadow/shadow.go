// Package shadow provides point-in-time volume snapshots for the source
// side of a mirror. A snapshot makes open and locked files readable in a
// consistent state; the engine reads from the snapshot device while
// reporting paths in original-volume form.
package shadow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hobomirror/hobomirror/pkg/winpath"
)

// Snapshotter produces readable snapshot roots for source volumes.
type Snapshotter interface {
	// Snapshot creates a snapshot of the volume rooted at volumeRoot
	// (e.g. `C:\`) and returns its device root WITH a trailing
	// separator: listing a bare shadow-copy device path is a known OS
	// quirk, so the separator is appended here, once, for everyone.
	Snapshot(volumeRoot string) (deviceRoot string, err error)
	// Close releases every snapshot this snapshotter created.
	Close() error
}

// NoSnapshot reads the live volume directly. Used by --no-snapshot and by
// tests; open files may read inconsistently.
type NoSnapshot struct{}

// Snapshot returns the volume root itself.
func (NoSnapshot) Snapshot(volumeRoot string) (string, error) {
	return winpath.WithTrailingSeparator(volumeRoot), nil
}

// Close is a no-op.
func (NoSnapshot) Close() error { return nil }

// Set prepares and caches one snapshot per distinct source volume. Snapshot
// creation is the only concurrent part of a run: the volumes are
// independent and each creation can take seconds, so they run in parallel
// before the strictly sequential mirror begins.
type Set struct {
	snapper Snapshotter

	mu       sync.Mutex
	byVolume map[string]string
}

// NewSet wraps a Snapshotter in a per-volume cache.
func NewSet(snapper Snapshotter) *Set {
	return &Set{snapper: snapper, byVolume: make(map[string]string)}
}

// volumeKey folds a volume root into the cache key: trailing-separator and
// case insensitive.
func volumeKey(volumeRoot string) string {
	return strings.ToLower(winpath.WithTrailingSeparator(volumeRoot))
}

// Prepare snapshots every distinct volume in the list concurrently. A
// failure does not cancel the other creations (Snapshot takes no context);
// every creation runs to completion and the first failure is returned.
func (s *Set) Prepare(ctx context.Context, volumeRoots []string) error {
	seen := make(map[string]struct{})
	g, _ := errgroup.WithContext(ctx)
	for _, vol := range volumeRoots {
		volume := winpath.WithTrailingSeparator(vol)
		key := volumeKey(vol)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		g.Go(func() error {
			root, err := s.snapper.Snapshot(volume)
			if err != nil {
				return fmt.Errorf("snapshot volume %s: %w", volume, err)
			}
			s.mu.Lock()
			s.byVolume[key] = root
			s.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// Root returns the snapshot device root for a volume prepared earlier.
func (s *Set) Root(volumeRoot string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, ok := s.byVolume[volumeKey(volumeRoot)]
	return root, ok
}

// Close releases all snapshots.
func (s *Set) Close() error {
	return s.snapper.Close()
}
