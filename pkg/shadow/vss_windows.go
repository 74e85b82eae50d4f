//go:build windows

package shadow

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hobomirror/hobomirror/pkg/plog"
	"github.com/hobomirror/hobomirror/pkg/winpath"
)

// VSS creates Volume Shadow Copy snapshots through the WMI provider. The
// tool shells out to PowerShell rather than speaking COM: snapshot creation
// happens a handful of times per run and robustness beats elegance here.
type VSS struct {
	// Label tags the run in diagnostics; a fresh UUID per run by default.
	Label string

	mu      sync.Mutex
	created []string // shadow copy IDs, for deletion on Close
}

// NewVSS returns a snapshotter that creates ClientAccessible shadow copies.
func NewVSS() *VSS {
	return &VSS{Label: uuid.NewString()}
}

// Snapshot creates a shadow copy of the volume and returns its device root
// with a trailing separator.
func (v *VSS) Snapshot(volumeRoot string) (string, error) {
	volume := winpath.WithTrailingSeparator(volumeRoot)
	// Creates the copy, then resolves its device object. Output is two
	// lines: the shadow ID and the device path.
	script := fmt.Sprintf(
		`$r = (Get-WmiObject -List Win32_ShadowCopy).Create('%s', 'ClientAccessible'); `+
			`if ($r.ReturnValue -ne 0) { exit $r.ReturnValue }; `+
			`$s = Get-WmiObject Win32_ShadowCopy | Where-Object { $_.ID -eq $r.ShadowID }; `+
			`Write-Output $s.ID; Write-Output $s.DeviceObject`,
		strings.ReplaceAll(volume, "'", "''"))

	out, err := exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Output()
	if err != nil {
		return "", fmt.Errorf("shadow copy creation for %s failed: %w", volume, err)
	}
	lines := strings.Fields(strings.TrimSpace(string(out)))
	if len(lines) < 2 {
		return "", fmt.Errorf("shadow copy creation for %s returned unexpected output: %q", volume, string(out))
	}
	id, device := lines[0], lines[1]

	v.mu.Lock()
	v.created = append(v.created, id)
	v.mu.Unlock()

	plog.Info("Shadow copy created", "volume", volume, "id", id, "device", device, "run", v.Label)
	return winpath.WithTrailingSeparator(device), nil
}

// Close deletes every shadow copy this run created. Failures are logged
// and do not stop the remaining deletions; a leaked shadow copy ages out
// under the system's own storage limits.
func (v *VSS) Close() error {
	v.mu.Lock()
	ids := v.created
	v.created = nil
	v.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		out, err := exec.Command("vssadmin", "delete", "shadows",
			"/shadow="+id, "/quiet").CombinedOutput()
		if err != nil {
			plog.Warn("Could not delete shadow copy", "id", id, "output", string(out), "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("delete shadow copy %s: %w", id, err)
			}
		}
	}
	return firstErr
}
