package mirror

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hobomirror/hobomirror/pkg/plog"
	"github.com/hobomirror/hobomirror/pkg/report"
)

func TestProgressThrottleSamples(t *testing.T) {
	plog.SetOutput(io.Discard)
	dir := t.TempDir()
	rep, err := report.New(dir, "prog", report.ArchiveNone, report.WithConsole(false))
	if err != nil {
		t.Fatal(err)
	}
	defer rep.Close()

	clock := time.Unix(0, 0)
	p := newProgressThrottle(rep)
	p.now = func() time.Time { return clock }

	cb := p.callback(`C:\big.bin`)
	total := int64(10 * 1024 * 1024)

	// Start event always emits.
	cb(total, 0)
	// A burst of chunk events within the interval is sampled down.
	for copied := int64(128 * 1024); copied < total; copied += 128 * 1024 {
		clock = clock.Add(2 * time.Millisecond)
		cb(total, copied)
	}
	// End event always emits.
	cb(total, total)
	rep.Close()

	data, err := os.ReadFile(filepath.Join(dir, "debug.log"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Count(string(data), "copy progress")
	// ~79 chunk callbacks over ~158ms at a 100ms throttle: the start,
	// the end, and one mid-copy sample.
	if lines < 3 || lines > 5 {
		t.Errorf("progress events = %d, want a small sampled count (3-5)", lines)
	}
}
