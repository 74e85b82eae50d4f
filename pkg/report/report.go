// Package report is the event surface of the mirror engine. Every decision,
// mutation and failure flows through a Reporter into five append-only
// channel sinks plus the console; the reporter also tracks the set of
// directories that received at least one change and the error counters that
// decide the process exit code.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hobomirror/hobomirror/pkg/plog"
	"github.com/hobomirror/hobomirror/pkg/util"
	"github.com/hobomirror/hobomirror/pkg/winpath"
)

// Channel identifies one of the five event streams.
type Channel int

const (
	// ChannelAction records every mutation as it is about to happen.
	ChannelAction Channel = iota
	// ChannelChange records every detected source/target divergence that
	// will lead to a mutation.
	ChannelChange
	// ChannelError records expected failure paths (IO errors on single
	// entries).
	ChannelError
	// ChannelCritical records code paths that should be unreachable
	// under their stated preconditions.
	ChannelCritical
	// ChannelDebug records diagnostic detail such as copy progress.
	ChannelDebug
)

var channelToString = map[Channel]string{
	ChannelAction:   "action",
	ChannelChange:   "change",
	ChannelError:    "error",
	ChannelCritical: "critical",
	ChannelDebug:    "debug",
}

var stringToChannel map[string]Channel

func init() {
	stringToChannel = util.InvertMap(channelToString)
}

func (c Channel) String() string {
	if s, ok := channelToString[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown_channel(%d)", int(c))
}

// ParseChannel converts a channel name back into its Channel value.
func ParseChannel(s string) (Channel, error) {
	if c, ok := stringToChannel[strings.ToLower(s)]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("invalid report channel: %q", s)
}

// sinkFileNames maps each channel to its log file within the log directory.
var sinkFileNames = map[Channel]string{
	ChannelAction:   "actions.log",
	ChannelChange:   "changes.log",
	ChannelError:    "errors.log",
	ChannelCritical: "critical.log",
	ChannelDebug:    "debug.log",
}

// Reporter fans events out to the channel sinks and the console. It is
// written to by the single engine thread only; the counters and the
// changed-directory set are not synchronized.
type Reporter struct {
	runID string

	files   map[Channel]*os.File
	loggers map[Channel]*slog.Logger
	console bool

	changedDirs map[string]struct{}
	changes     int
	errors      int
	criticals   int
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithConsole mirrors every event onto the process console logger.
func WithConsole(enabled bool) Option {
	return func(r *Reporter) { r.console = enabled }
}

// New creates a Reporter writing into logDir. Log files left over from the
// previous run are first archived according to format; the five sinks are
// then created fresh, each stamped with the run identifier.
func New(logDir, runID string, format ArchiveFormat, opts ...Option) (*Reporter, error) {
	if err := os.MkdirAll(logDir, util.UserWritableDirPerms); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", logDir, err)
	}
	if err := rotateOldLogs(logDir, format); err != nil {
		return nil, err
	}

	r := &Reporter{
		runID:       runID,
		files:       make(map[Channel]*os.File, len(sinkFileNames)),
		loggers:     make(map[Channel]*slog.Logger, len(sinkFileNames)),
		console:     true,
		changedDirs: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	for ch, name := range sinkFileNames {
		f, err := os.OpenFile(filepath.Join(logDir, name),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, util.UserWritableFilePerms)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open log sink %s: %w", name, err)
		}
		r.files[ch] = f
		logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
		r.loggers[ch] = logger.With("run", runID)
	}
	return r, nil
}

func (r *Reporter) emit(ch Channel, level slog.Level, msg string, args ...any) {
	if l, ok := r.loggers[ch]; ok {
		l.Log(context.Background(), level, msg, args...)
	}
	if r.console {
		consoleLog(ch, msg, args...)
	}
}

func consoleLog(ch Channel, msg string, args ...any) {
	switch ch {
	case ChannelError:
		plog.Warn(msg, args...)
	case ChannelCritical:
		plog.Error(msg, args...)
	case ChannelDebug:
		plog.Debug(msg, args...)
	default:
		plog.Info(msg, args...)
	}
}

// Action records a mutation that is about to happen.
func (r *Reporter) Action(msg string, args ...any) {
	r.emit(ChannelAction, slog.LevelInfo, msg, args...)
}

// Change records a detected divergence. relPath is the affected entry's
// path relative to the target root; when non-empty, its parent directory is
// added to the changed-directory set. Pass "" for changes with no single
// affected path.
func (r *Reporter) Change(relPath, msg string, args ...any) {
	r.changes++
	if relPath != "" {
		parent := winpath.Parent(relPath)
		if parent == "" {
			parent = "."
		}
		r.changedDirs[parent] = struct{}{}
	}
	r.emit(ChannelChange, slog.LevelInfo, msg, args...)
}

// Error records an expected failure. The run continues; the final exit code
// becomes at least 1.
func (r *Reporter) Error(msg string, args ...any) {
	r.errors++
	r.emit(ChannelError, slog.LevelWarn, msg, args...)
}

// CriticalError records a violated precondition. The run continues; the
// final exit code becomes 2.
func (r *Reporter) CriticalError(msg string, args ...any) {
	r.criticals++
	r.emit(ChannelCritical, slog.LevelError, msg, args...)
}

// Debug records diagnostic detail.
func (r *Reporter) Debug(msg string, args ...any) {
	r.emit(ChannelDebug, slog.LevelDebug, msg, args...)
}

// ChangeCount returns the number of Change events so far.
func (r *Reporter) ChangeCount() int { return r.changes }

// ErrorCount returns the number of Error events so far.
func (r *Reporter) ErrorCount() int { return r.errors }

// CriticalCount returns the number of CriticalError events so far.
func (r *Reporter) CriticalCount() int { return r.criticals }

// ExitCode maps the counters onto the process exit code: 2 if any critical
// error occurred, else 1 if any error occurred, else 0.
func (r *Reporter) ExitCode() int {
	switch {
	case r.criticals > 0:
		return 2
	case r.errors > 0:
		return 1
	default:
		return 0
	}
}

// ChangedDirs returns the sorted set of target-relative directories that
// had at least one change applied during the run.
func (r *Reporter) ChangedDirs() []string {
	dirs := make([]string, 0, len(r.changedDirs))
	for d := range r.changedDirs {
		dirs = append(dirs, d)
	}
	slices.SortFunc(dirs, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return dirs
}

// Close flushes and closes all sinks.
func (r *Reporter) Close() error {
	var firstErr error
	for _, f := range r.files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
