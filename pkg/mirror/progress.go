package mirror

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hobomirror/hobomirror/pkg/report"
	"github.com/hobomirror/hobomirror/pkg/winfs"
)

// progressInterval is the minimum spacing between progress events reaching
// the reporter. The underlying primitive still calls back per chunk; the
// throttle samples. Purely a reporting-quality knob, not a correctness one.
const progressInterval = 100 * time.Millisecond

// progressThrottle buffers per-chunk copy progress and forwards at most one
// event per interval, plus the first and last event of every copy.
type progressThrottle struct {
	rep      *report.Reporter
	interval time.Duration
	now      func() time.Time
	last     time.Time
}

func newProgressThrottle(rep *report.Reporter) *progressThrottle {
	return &progressThrottle{rep: rep, interval: progressInterval, now: time.Now}
}

// callback returns the per-chunk progress function for one file copy.
func (p *progressThrottle) callback(displayPath string) winfs.CopyProgress {
	return func(total, copied int64) {
		boundary := copied == 0 || copied == total
		now := p.now()
		if !boundary && now.Sub(p.last) < p.interval {
			return
		}
		p.last = now
		p.rep.Debug("copy progress",
			"file", displayPath,
			"copied", humanize.IBytes(uint64(copied)),
			"total", humanize.IBytes(uint64(total)))
	}
}
