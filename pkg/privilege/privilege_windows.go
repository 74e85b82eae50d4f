//go:build windows

package privilege

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// EnableMirrorPrivileges enables every privilege the mirror depends on.
// A privilege that is absent from the token entirely (not merely disabled)
// makes this fail; the caller should surface that as a fatal configuration
// error since the run cannot honor its contract without it.
func EnableMirrorPrivileges() error {
	for _, name := range []string{Backup, Restore, Security, TakeOwnership} {
		if err := enable(name); err != nil {
			return fmt.Errorf("enable %s: %w", name, err)
		}
	}
	return nil
}

func enable(name string) error {
	var token windows.Token
	err := windows.OpenProcessToken(windows.CurrentProcess(),
		windows.TOKEN_ADJUST_PRIVILEGES|windows.TOKEN_QUERY, &token)
	if err != nil {
		return fmt.Errorf("open process token: %w", err)
	}
	defer token.Close()

	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return err
	}
	var luid windows.LUID
	if err := windows.LookupPrivilegeValue(nil, namePtr, &luid); err != nil {
		return fmt.Errorf("lookup privilege value: %w", err)
	}

	tp := windows.Tokenprivileges{
		PrivilegeCount: 1,
		Privileges: [1]windows.LUIDAndAttributes{{
			Luid:       luid,
			Attributes: windows.SE_PRIVILEGE_ENABLED,
		}},
	}
	if err := windows.AdjustTokenPrivileges(token, false, &tp, 0, nil, nil); err != nil {
		return fmt.Errorf("adjust token privileges: %w", err)
	}
	// AdjustTokenPrivileges succeeds even when the privilege is not held;
	// the real outcome is in the thread's last error.
	if windows.GetLastError() == windows.ERROR_NOT_ALL_ASSIGNED {
		return fmt.Errorf("privilege not held by the process token")
	}
	return nil
}
