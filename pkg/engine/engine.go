// Package engine drives a whole mirror run: it validates the configured
// pairs, takes the run lock, enables privileges, snapshots the source
// volumes, executes the mirror tasks strictly in sequence, and persists the
// run statistics. The per-directory reconciliation itself lives in
// pkg/mirror; this package owns everything around it.
package engine

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/hobomirror/hobomirror/pkg/mirror"
	"github.com/hobomirror/hobomirror/pkg/plog"
	"github.com/hobomirror/hobomirror/pkg/preflight"
	"github.com/hobomirror/hobomirror/pkg/report"
	"github.com/hobomirror/hobomirror/pkg/settings"
	"github.com/hobomirror/hobomirror/pkg/shadow"
	"github.com/hobomirror/hobomirror/pkg/util"
	"github.com/hobomirror/hobomirror/pkg/winpath"
)

// Pair is one (source, target) mirroring assignment.
type Pair struct {
	From string
	To   string
}

// Engine holds the configuration of one run.
type Engine struct {
	Pairs        []Pair
	SettingsPath string
	LogDir       string

	// NoSnapshot reads the live volumes instead of shadow copies.
	NoSnapshot bool
	// Quiet suppresses per-event console output.
	Quiet bool

	// RefreshAccessControl forces the ACL refresh on (true) or off
	// (false); nil follows the schedule persisted in the settings.
	RefreshAccessControl *bool
	// UpdateMetadata enables timestamp and attribute propagation.
	UpdateMetadata bool

	// Extra ignore entries from the command line, merged over the
	// persisted ones.
	ExtraIgnorePaths    []string
	ExtraIgnoreDirNames []string

	// deps overrides the platform collaborators; tests only.
	deps *collaborators
}

// collaborators bundles the platform services a run needs. checkSource and
// checkTarget default to the preflight package; tests running against a
// fake filesystem inject their own.
type collaborators struct {
	fs          mirror.Filesystem
	codec       mirror.ReparseCodec
	sec         mirror.SecurityCopier
	readGuard   func(path string) (string, error)
	snapper     shadow.Snapshotter
	checkSource func(path string) error
	checkTarget func(path string) error
}

// volumeRootOf returns the volume root of an absolute path ("C:\x\y" →
// "C:\"), or "" if the path has no volume.
func volumeRootOf(path string) string {
	return winpath.VolumeRoot(path)
}

// validate applies the fatal-configuration checks that must abort the run
// before any work starts.
func (e *Engine) validate() bool {
	if len(e.Pairs) == 0 {
		plog.Error("No mirror pairs configured; use --from and --to")
		return false
	}
	for _, p := range e.Pairs {
		if p.From == "" || p.To == "" {
			plog.Error("Mirror pair with empty side", "from", p.From, "to", p.To)
			return false
		}
		if volumeRootOf(p.From) == "" {
			plog.Error("Source path must be absolute with a volume", "from", p.From)
			return false
		}
	}
	return true
}

// Run executes the whole mirror run and returns the process exit code:
// 2 if any critical error occurred, 1 if any error occurred (or the
// configuration was fatal), 0 for a clean run.
func (e *Engine) Run(ctx context.Context) int {
	start := time.Now()

	if !e.validate() {
		return 1
	}

	cfg, err := settings.Load(e.SettingsPath)
	if err != nil {
		plog.Error("Could not load settings", "path", e.SettingsPath, "error", err)
		return 1
	}

	// One run at a time: two concurrent mirrors against the same
	// settings would interleave destructively.
	runLock := flock.New(e.SettingsPath + ".lock")
	locked, err := runLock.TryLock()
	if err != nil || !locked {
		plog.Error("Another mirror run appears to be in progress", "lock", runLock.Path(), "error", err)
		return 1
	}
	defer runLock.Unlock()

	runID := uuid.NewString()
	rep, err := report.New(e.LogDir, runID, cfg.LogArchiveFormat, report.WithConsole(!e.Quiet))
	if err != nil {
		plog.Error("Could not open log sinks", "dir", e.LogDir, "error", err)
		return 1
	}
	defer rep.Close()

	deps := e.deps
	if deps == nil {
		deps, err = platformCollaborators(e.NoSnapshot)
		if err != nil {
			rep.Error("platform not supported", "error", err)
			return rep.ExitCode()
		}
		if err := enablePrivileges(); err != nil {
			rep.Error("could not enable backup privileges; run elevated", "error", err)
			return rep.ExitCode()
		}
	}

	checkSource, checkTarget := deps.checkSource, deps.checkTarget
	if checkSource == nil {
		checkSource = preflight.CheckMirrorSource
	}
	if checkTarget == nil {
		checkTarget = preflight.CheckMirrorTarget
	}

	// Preflight every pair before touching anything: a bad pair aborts
	// the run while zero mutations have happened.
	for _, p := range e.Pairs {
		if err := checkSource(p.From); err != nil {
			rep.Error("source preflight failed", "from", p.From, "error", err)
		}
		if err := checkTarget(p.To); err != nil {
			rep.Error("target preflight failed", "to", p.To, "error", err)
		}
		if err := preflight.CheckGuardFile(p.To, deps.readGuard); err != nil {
			rep.Error("target not approved for mirroring", "to", p.To, "error", err)
		}
	}
	if rep.ErrorCount() > 0 {
		return rep.ExitCode()
	}

	snapshots := shadow.NewSet(deps.snapper)
	defer func() {
		if err := snapshots.Close(); err != nil {
			plog.Warn("Could not release snapshots", "error", err)
		}
	}()

	volumes := make([]string, 0, len(e.Pairs))
	for _, p := range e.Pairs {
		volumes = append(volumes, volumeRootOf(p.From))
	}
	if err := snapshots.Prepare(ctx, volumes); err != nil {
		rep.Error("snapshot creation failed", "error", err)
		return rep.ExitCode()
	}

	refreshACL := cfg.ShouldRefreshAccessControl(start)
	if e.RefreshAccessControl != nil {
		refreshACL = *e.RefreshAccessControl
	}

	opts := mirror.Options{
		IgnorePaths:          util.MergeUnique(cfg.IgnorePaths, e.ExtraIgnorePaths),
		IgnoreDirNames:       util.MergeUnique(cfg.IgnoreDirNames, e.ExtraIgnoreDirNames),
		RefreshAccessControl: refreshACL,
		UpdateMetadata:       e.UpdateMetadata,
	}

	stats := &mirror.Stats{}
	task := &mirror.Task{
		FS:        deps.fs,
		Codec:     deps.codec,
		Sec:       deps.sec,
		Rep:       rep,
		Opts:      opts,
		ReadGuard: deps.readGuard,
		Stats:     stats,
	}

	for _, p := range e.Pairs {
		vol := volumeRootOf(p.From)
		snapRoot, ok := snapshots.Root(vol)
		if !ok {
			rep.Error("no snapshot for volume", "volume", vol, "from", p.From)
			continue
		}
		sourceRoot := winpath.RewriteRoot(p.From, vol, snapRoot)
		translate := func(path string) string {
			return winpath.RewriteRoot(path, snapRoot, vol)
		}
		plog.Info("Mirroring", "from", p.From, "to", p.To, "snapshot", snapRoot)
		task.Run(sourceRoot, p.To, translate)
	}

	changed := rep.ChangedDirs()
	plog.Info("Run complete",
		"duration", time.Since(start).Round(time.Millisecond),
		"changes", rep.ChangeCount(),
		"filesCopied", stats.FilesCopied,
		"bytesCopied", humanize.IBytes(uint64(stats.BytesCopied)),
		"entriesDeleted", stats.EntriesDeleted,
		"errors", rep.ErrorCount(),
		"criticalErrors", rep.CriticalCount(),
		"changedDirs", len(changed))
	for _, dir := range changed {
		plog.Info("Directory changed", "dir", dir)
	}

	cfg.Statistics = settings.Statistics{
		LastRunStartUTC: start.UTC(),
		LastRunDuration: time.Since(start),
		FilesCopied:     stats.FilesCopied,
		EntriesDeleted:  stats.EntriesDeleted,
		BytesCopied:     stats.BytesCopied,
		ChangeCount:     int64(rep.ChangeCount()),
		ErrorCount:      int64(rep.ErrorCount()),
	}
	if refreshACL {
		cfg.RecordAccessControlRefresh(start)
	}
	if err := cfg.Save(e.SettingsPath); err != nil {
		plog.Warn("Could not persist settings", "path", e.SettingsPath, "error", err)
	}

	return rep.ExitCode()
}
