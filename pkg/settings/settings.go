// Package settings reads and writes the persistent configuration of the
// mirror tool: the ignore lists, the access-control refresh schedule, and
// the statistics of the last run. The file is plain indented JSON so
// operators can edit it by hand between runs.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hobomirror/hobomirror/pkg/report"
	"github.com/hobomirror/hobomirror/pkg/util"
)

// DefaultFileName is the settings file name used when the operator does not
// name one explicitly.
const DefaultFileName = "hobomirror.settings.json"

// Statistics holds the outcome of the most recent run. Purely informational.
type Statistics struct {
	LastRunStartUTC time.Time     `json:"lastRunStartUTC,omitempty"`
	LastRunDuration time.Duration `json:"lastRunDuration,omitempty"`
	FilesCopied     int64         `json:"filesCopied,omitempty"`
	EntriesDeleted  int64         `json:"entriesDeleted,omitempty"`
	BytesCopied     int64         `json:"bytesCopied,omitempty"`
	ChangeCount     int64         `json:"changeCount,omitempty"`
	ErrorCount      int64         `json:"errorCount,omitempty"`
}

// Settings is the serialized configuration.
type Settings struct {
	// SkipRefreshAccessControlDays suppresses the per-entry security
	// descriptor refresh if the last full refresh is younger than this
	// many days. Zero means refresh on every run.
	SkipRefreshAccessControlDays int `json:"skipRefreshAccessControlDays"`

	// LastRefreshAccessControl is the time of the last run that refreshed
	// security descriptors. Maintained by the tool.
	LastRefreshAccessControl time.Time `json:"lastRefreshAccessControl,omitempty"`

	// IgnorePaths lists absolute source paths to leave out of the mirror.
	// Compared case-insensitively with separators normalized. A path that
	// stops being mirrored is deleted from the target on the next run.
	IgnorePaths []string `json:"ignorePaths"`

	// IgnoreDirNames lists directory leaf names (e.g. "node_modules") to
	// leave out of the mirror wherever they appear.
	IgnoreDirNames []string `json:"ignoreDirNames"`

	// LogArchiveFormat selects how the previous run's logs are archived.
	LogArchiveFormat report.ArchiveFormat `json:"logArchiveFormat"`

	// Statistics of the most recent run.
	Statistics Statistics `json:"statistics,omitempty"`
}

// Default returns the settings used when no file exists yet.
func Default() *Settings {
	return &Settings{
		SkipRefreshAccessControlDays: 0,
		IgnorePaths:                  []string{},
		IgnoreDirNames:               []string{},
		LogArchiveFormat:             report.ArchiveGzip,
	}
}

// Load reads the settings file at path. A missing file yields the defaults;
// a malformed file is an error so a typo never silently reverts the ignore
// lists.
func Load(path string) (*Settings, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not open settings file %s: %w", path, err)
	}
	defer f.Close()

	s := Default()
	decoder := json.NewDecoder(f)
	if err := decoder.Decode(s); err != nil {
		return nil, fmt.Errorf("could not parse settings file %s: %w. It may be corrupt", path, err)
	}
	return s, nil
}

// Save writes the settings to path, creating parent directories as needed.
func (s *Settings) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
			return fmt.Errorf("could not create settings directory %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("could not write settings file %s: %w", path, err)
	}
	return nil
}

// ShouldRefreshAccessControl decides whether this run copies security
// descriptors, based on the configured skip window and the time of the last
// refresh.
func (s *Settings) ShouldRefreshAccessControl(now time.Time) bool {
	if s.SkipRefreshAccessControlDays <= 0 {
		return true
	}
	if s.LastRefreshAccessControl.IsZero() {
		return true
	}
	cutoff := s.LastRefreshAccessControl.AddDate(0, 0, s.SkipRefreshAccessControlDays)
	return !now.Before(cutoff)
}

// RecordAccessControlRefresh stamps the time of a completed refresh run.
func (s *Settings) RecordAccessControlRefresh(now time.Time) {
	s.LastRefreshAccessControl = now.UTC()
}
