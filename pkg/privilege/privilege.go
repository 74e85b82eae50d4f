// Package privilege turns on the process-token privileges the mirror needs
// before any filesystem work starts: backup and restore semantics bypass
// per-file ACL checks, SeSecurityPrivilege unlocks SACL access, and
// take-ownership covers descriptors whose owner the process could not
// otherwise write.
package privilege

// Names of the token privileges the mirror enables.
const (
	Backup        = "SeBackupPrivilege"
	Restore       = "SeRestorePrivilege"
	Security      = "SeSecurityPrivilege"
	TakeOwnership = "SeTakeOwnershipPrivilege"
)
