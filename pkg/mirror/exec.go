package mirror

import (
	"github.com/hobomirror/hobomirror/pkg/winfs"
)

// The guarded executor. Every primitive call the engine makes goes through
// one of these wrappers: the error (if any) is classified, reported on the
// Error channel, and swallowed, so the phase loops in syncDir only ever see
// a success flag. Action-labeled wrappers additionally announce the
// mutation on the Action channel before performing it.

// try runs fn and reports any failure as an Error. Returns true on success.
func (s *syncer) try(label, path string, fn func() error) bool {
	err := fn()
	if err == nil {
		return true
	}
	s.rep.Error(label+" failed",
		"path", s.display(path),
		"cause", winfs.Classify(err).String(),
		"error", err)
	return false
}

// act announces the mutation on the Action channel, then runs it guarded.
func (s *syncer) act(label, path string, fn func() error, extra ...any) bool {
	args := append([]any{"path", s.display(path)}, extra...)
	s.rep.Action(label, args...)
	return s.try(label, path, fn)
}

// tryGet is the value-returning form of try. The zero value and false are
// returned on failure.
func tryGet[T any](s *syncer, label, path string, fn func() (T, error)) (T, bool) {
	v, err := fn()
	if err == nil {
		return v, true
	}
	s.rep.Error(label+" failed",
		"path", s.display(path),
		"cause", winfs.Classify(err).String(),
		"error", err)
	var zero T
	return zero, false
}

// unreachable reports a violated precondition: the entry is skipped, the
// run continues, and the exit code becomes 2.
func (s *syncer) unreachable(context string, args ...any) {
	s.rep.CriticalError("precondition violated: "+context, args...)
}
