// Package secdesc copies binary security descriptors between filesystem
// entries. Descriptors are treated as opaque byte sequences covering owner,
// group, DACL and SACL, including inheritability; reading and writing the
// SACL requires SeSecurityPrivilege on the process token.
//
// Applying a descriptor that carries inheritable ACEs to a directory may
// cascade into existing children. Callers that sync a directory's children
// must therefore apply the directory's descriptor BEFORE the children's so
// the children's own descriptors win.
package secdesc
