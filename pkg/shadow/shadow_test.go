package shadow

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

type stubSnapper struct {
	mu     sync.Mutex
	calls  []string
	closed bool
	fail   map[string]bool
}

func (s *stubSnapper) Snapshot(volumeRoot string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[volumeRoot] {
		return "", fmt.Errorf("injected failure for %s", volumeRoot)
	}
	s.calls = append(s.calls, volumeRoot)
	return `\\?\GLOBALROOT\Device\ShadowOf` + string(volumeRoot[0]) + `\`, nil
}

func (s *stubSnapper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestNoSnapshotPassesVolumeThrough(t *testing.T) {
	root, err := NoSnapshot{}.Snapshot(`C:`)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if root != `C:\` {
		t.Errorf("NoSnapshot root = %q, want C:\\", root)
	}
}

func TestSetPreparesEachVolumeOnce(t *testing.T) {
	stub := &stubSnapper{}
	set := NewSet(stub)
	// C:\ appears three times in different spellings; D:\ once.
	err := set.Prepare(context.Background(), []string{`C:\`, `C:`, `c:\`, `D:\`})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	// All three spellings of C collapse to one snapshot.
	if len(stub.calls) != 2 {
		t.Errorf("expected 2 snapshot calls, got %v", stub.calls)
	}

	if _, ok := set.Root(`C:`); !ok {
		t.Error("Root(C:) not found after Prepare")
	}
	if _, ok := set.Root(`D:\`); !ok {
		t.Error("Root(D:\\) not found after Prepare")
	}
	if _, ok := set.Root(`E:\`); ok {
		t.Error("Root(E:\\) must not exist")
	}

	if err := set.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !stub.closed {
		t.Error("Close did not reach the snapshotter")
	}
}

func TestSetPrepareFailurePropagates(t *testing.T) {
	stub := &stubSnapper{fail: map[string]bool{`D:\`: true}}
	set := NewSet(stub)
	if err := set.Prepare(context.Background(), []string{`C:\`, `D:\`}); err == nil {
		t.Error("expected Prepare to fail when one volume fails")
	}
}
