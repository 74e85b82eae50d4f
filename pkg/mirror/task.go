package mirror

import (
	"fmt"

	"github.com/hobomirror/hobomirror/pkg/preflight"
	"github.com/hobomirror/hobomirror/pkg/report"
)

// Task binds the engine to its collaborators for one or more mirroring
// pairs. The zero value is not usable; populate every field (ReadGuard may
// stay nil to read the guard file through the ordinary OS path, and Stats
// may stay nil when the counters are not wanted).
type Task struct {
	FS    Filesystem
	Codec ReparseCodec
	Sec   SecurityCopier
	Rep   *report.Reporter
	Opts  Options

	// ReadGuard reads the guard file's content. Nil means os.ReadFile.
	// The production engine wires the backup-semantics reader here so an
	// unreadable-by-ACL target can still prove its approval.
	ReadGuard func(path string) (string, error)

	// Stats, when non-nil, accumulates copy and delete counters across
	// Run calls.
	Stats *Stats
}

// Run executes one mirroring pair. sourceRoot is the readable point-in-time
// root (usually a snapshot-space path); targetRoot is the destination
// directory, which must exist and carry an approving guard file. translate
// maps source paths to their original-volume form for display and for
// ignore matching; nil means identity.
//
// All outcomes flow through the reporter; Run itself never fails. A target
// without a valid guard file produces zero mutations.
func (t *Task) Run(sourceRoot, targetRoot string, translate func(string) string) {
	defer func() {
		if p := recover(); p != nil {
			t.Rep.Error("task failed unexpectedly", "target", targetRoot, "panic", fmt.Sprint(p))
			t.Rep.CriticalError("precondition violated: unexpected failure escaped the task driver",
				"target", targetRoot)
		}
	}()

	if err := preflight.CheckGuardFile(targetRoot, t.ReadGuard); err != nil {
		t.Rep.Error("target not approved for mirroring", "target", targetRoot, "error", err)
		return
	}

	stats := t.Stats
	if stats == nil {
		stats = &Stats{}
	}
	s := &syncer{
		fs:         t.FS,
		codec:      t.Codec,
		sec:        t.Sec,
		rep:        t.Rep,
		opts:       t.Opts,
		translate:  translate,
		targetRoot: targetRoot,
		prog:       newProgressThrottle(t.Rep),
		stats:      stats,
	}
	s.syncTree(sourceRoot, targetRoot)
}
