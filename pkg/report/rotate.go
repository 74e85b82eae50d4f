package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/hobomirror/hobomirror/pkg/plog"
	"github.com/hobomirror/hobomirror/pkg/util"
)

// ArchiveFormat selects how the previous run's log files are archived when
// a new run starts.
type ArchiveFormat string

const (
	// ArchiveGzip compresses rotated logs with parallel gzip.
	ArchiveGzip ArchiveFormat = "gzip"
	// ArchiveZstd compresses rotated logs with zstd.
	ArchiveZstd ArchiveFormat = "zstd"
	// ArchiveNone renames rotated logs without compressing them.
	ArchiveNone ArchiveFormat = "none"
)

var formatToString = map[ArchiveFormat]string{
	ArchiveGzip: "gzip",
	ArchiveZstd: "zstd",
	ArchiveNone: "none",
}

var stringToFormat map[string]ArchiveFormat

func init() {
	stringToFormat = util.InvertMap(formatToString)
}

func (f ArchiveFormat) String() string {
	if s, ok := formatToString[f]; ok {
		return s
	}
	return fmt.Sprintf("unknown_archive_format(%s)", string(f))
}

// ParseArchiveFormat parses a format name.
func ParseArchiveFormat(s string) (ArchiveFormat, error) {
	if f, ok := stringToFormat[strings.ToLower(s)]; ok {
		return f, nil
	}
	return "", fmt.Errorf("invalid log archive format: %q. Must be 'gzip', 'zstd', or 'none'", s)
}

// MarshalJSON implements the json.Marshaler interface.
func (f ArchiveFormat) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (f *ArchiveFormat) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("ArchiveFormat should be a string, got %s", data)
	}
	parsed, err := ParseArchiveFormat(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (f ArchiveFormat) extension() string {
	switch f {
	case ArchiveGzip:
		return ".gz"
	case ArchiveZstd:
		return ".zst"
	default:
		return ""
	}
}

// rotateOldLogs archives any non-empty sink files left by the previous run.
// The archive name carries the previous run's last-write stamp so repeated
// runs never clobber each other. Rotation is best-effort per file: a file
// that cannot be archived is logged and left in place, and the new run
// appends to it.
func rotateOldLogs(logDir string, format ArchiveFormat) error {
	for _, name := range sinkFileNames {
		src := filepath.Join(logDir, name)
		info, err := os.Stat(src)
		if err != nil || info.Size() == 0 {
			continue
		}
		stamp := info.ModTime().Format("20060102-150405")
		dst := fmt.Sprintf("%s.%s.log%s", strings.TrimSuffix(src, ".log"), stamp, format.extension())

		if format == ArchiveNone {
			if err := os.Rename(src, dst); err != nil {
				plog.Warn("Could not rotate log file", "file", src, "error", err)
			}
			continue
		}
		if err := compressFile(src, dst, format); err != nil {
			plog.Warn("Could not archive log file", "file", src, "error", err)
			continue
		}
		if err := os.Remove(src); err != nil {
			plog.Warn("Could not remove archived log file", "file", src, "error", err)
		}
	}
	return nil
}

// compressFile writes a compressed copy of src to dst in the given format.
func compressFile(src, dst string, format ArchiveFormat) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open log for archiving: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, util.UserWritableFilePerms)
	if err != nil {
		return fmt.Errorf("create log archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var w io.WriteCloser
	switch format {
	case ArchiveGzip:
		w = pgzip.NewWriter(out)
	case ArchiveZstd:
		zw, zerr := zstd.NewWriter(out)
		if zerr != nil {
			return fmt.Errorf("create zstd writer: %w", zerr)
		}
		w = zw
	default:
		return fmt.Errorf("unsupported archive format: %s", format)
	}

	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		return fmt.Errorf("compress log: %w", err)
	}
	return w.Close()
}
