package engine

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hobomirror/hobomirror/pkg/mirror/mirrortest"
	"github.com/hobomirror/hobomirror/pkg/plog"
	"github.com/hobomirror/hobomirror/pkg/preflight"
	"github.com/hobomirror/hobomirror/pkg/settings"
	"github.com/hobomirror/hobomirror/pkg/shadow"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

func TestVolumeRootOf(t *testing.T) {
	cases := map[string]string{
		`C:\Users\bob`:     `C:\`,
		`\\srv\share\x`:    `\\srv\share\`,
		`relative\nowhere`: ``,
	}
	for in, want := range cases {
		if got := volumeRootOf(in); got != want {
			t.Errorf("volumeRootOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateRejectsBadPairs(t *testing.T) {
	plog.SetOutput(io.Discard)
	cases := []struct {
		name  string
		pairs []Pair
	}{
		{"no pairs", nil},
		{"empty from", []Pair{{From: "", To: `T:\tgt`}}},
		{"empty to", []Pair{{From: `C:\src`, To: ""}}},
		{"relative from", []Pair{{From: `src`, To: `T:\tgt`}}},
	}
	for _, tc := range cases {
		e := &Engine{Pairs: tc.pairs}
		if e.validate() {
			t.Errorf("%s: validate() = true, want false", tc.name)
		}
	}
	good := &Engine{Pairs: []Pair{{From: `C:\src`, To: `T:\tgt`}}}
	if !good.validate() {
		t.Error("good pair rejected")
	}
}

func TestRunAbortsOnFatalConfig(t *testing.T) {
	plog.SetOutput(io.Discard)
	e := &Engine{
		Pairs:        nil,
		SettingsPath: filepath.Join(t.TempDir(), "s.json"),
		LogDir:       t.TempDir(),
	}
	if code := e.Run(context.Background()); code != 1 {
		t.Errorf("exit code = %d, want 1 for fatal config", code)
	}
}

func TestRunAbortsOnMalformedSettings(t *testing.T) {
	plog.SetOutput(io.Discard)
	dir := t.TempDir()
	settingsPath := filepath.Join(dir, "s.json")
	if err := writeFile(settingsPath, "{broken"); err != nil {
		t.Fatal(err)
	}
	e := &Engine{
		Pairs:        []Pair{{From: `C:\src`, To: `T:\tgt`}},
		SettingsPath: settingsPath,
		LogDir:       filepath.Join(dir, "logs"),
	}
	if code := e.Run(context.Background()); code != 1 {
		t.Errorf("exit code = %d, want 1 for malformed settings", code)
	}
}

// fakeWorld builds an Engine wired entirely to injected fakes: an
// in-memory filesystem with an approved target, a passthrough snapshotter,
// and no-op source/target preflight (the fake paths don't exist on the
// host filesystem).
func fakeWorld(t *testing.T) (*Engine, *mirrortest.FakeFS) {
	t.Helper()
	plog.SetOutput(io.Discard)

	fs := mirrortest.New()
	mtime := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	cVol := fs.AddRoot("C:")
	src := cVol.AddDir("src", mtime)
	src.AddFile("a.txt", "hello", mtime)
	src.AddDir("sub", mtime).AddFile("nested.txt", "deep", mtime)
	tVol := fs.AddRoot("T:")
	tgt := tVol.AddDir("tgt", mtime)
	tgt.AddFile(preflight.GuardFileName, "allow", mtime)
	tgt.AddFile("stale.txt", "obsolete", mtime)

	dir := t.TempDir()
	e := &Engine{
		Pairs:          []Pair{{From: `C:\src`, To: `T:\tgt`}},
		SettingsPath:   filepath.Join(dir, "settings.json"),
		LogDir:         filepath.Join(dir, "logs"),
		Quiet:          true,
		UpdateMetadata: true,
		deps: &collaborators{
			fs:          fs,
			codec:       fs,
			sec:         fs,
			readGuard:   fs.ReadGuard,
			snapper:     shadow.NoSnapshot{},
			checkSource: func(string) error { return nil },
			checkTarget: func(string) error { return nil },
		},
	}
	return e, fs
}

func TestRunMirrorsPairEndToEnd(t *testing.T) {
	e, fs := fakeWorld(t)

	if code := e.Run(context.Background()); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	// The pair was mirrored: additions copied, stale entry deleted.
	a, err := fs.Resolve(`T:\tgt\a.txt`)
	if err != nil || string(a.Content) != "hello" {
		t.Errorf("a.txt not mirrored: %v %q", err, a.Content)
	}
	if _, err := fs.Resolve(`T:\tgt\sub\nested.txt`); err != nil {
		t.Error("nested file not mirrored")
	}
	if _, err := fs.Resolve(`T:\tgt\stale.txt`); err == nil {
		t.Error("stale target entry not deleted")
	}
	if _, err := fs.Resolve(`T:\tgt\` + preflight.GuardFileName); err != nil {
		t.Error("guard file must survive the run")
	}

	// The run's statistics were persisted into the settings file.
	cfg, err := settings.Load(e.SettingsPath)
	if err != nil {
		t.Fatalf("settings after run: %v", err)
	}
	if cfg.Statistics.FilesCopied != 2 {
		t.Errorf("persisted FilesCopied = %d, want 2", cfg.Statistics.FilesCopied)
	}
	if cfg.Statistics.EntriesDeleted != 1 {
		t.Errorf("persisted EntriesDeleted = %d, want 1", cfg.Statistics.EntriesDeleted)
	}
	if cfg.Statistics.ChangeCount == 0 {
		t.Error("persisted ChangeCount = 0, want > 0")
	}
	if cfg.LastRefreshAccessControl.IsZero() {
		t.Error("ACL refresh date not recorded")
	}

	// A second run over the converged trees is clean and changeless.
	if code := e.Run(context.Background()); code != 0 {
		t.Fatalf("second run exit code = %d, want 0", code)
	}
	cfg, err = settings.Load(e.SettingsPath)
	if err != nil {
		t.Fatalf("settings after second run: %v", err)
	}
	if cfg.Statistics.ChangeCount != 0 {
		t.Errorf("second run persisted ChangeCount = %d, want 0", cfg.Statistics.ChangeCount)
	}
}

func TestRunRefusesUnapprovedTargetBeforeAnyWork(t *testing.T) {
	e, fs := fakeWorld(t)
	guard, err := fs.Resolve(`T:\tgt\` + preflight.GuardFileName)
	if err != nil {
		t.Fatal(err)
	}
	guard.Content = []byte("denied")

	if code := e.Run(context.Background()); code != 1 {
		t.Errorf("exit code = %d, want 1 for unapproved target", code)
	}
	if fs.Mutations != 0 {
		t.Errorf("mutations = %d, want 0 before approval", fs.Mutations)
	}
	if _, err := fs.Resolve(`T:\tgt\stale.txt`); err != nil {
		t.Error("unapproved run must not delete anything")
	}
}
