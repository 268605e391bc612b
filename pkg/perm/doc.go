// Package perm shares the sadb data directory with members of the "sadb"
// group on Linux. On other platforms every operation is a no-op.
//
// Permission matrix when the group exists:
//
//	Path           Group   Mode   Set by
//	─────────────  ──────  ────   ──────────────────
//	<dir>/         sadb    0770   workspace.EnsureDir
//	config.yaml    sadb    0640   config.Save
//
// Without the group the directory stays 0700 and files 0600.
package perm
