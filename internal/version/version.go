/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version reports the build version.
package version

import "fmt"

// Version is set at build time via ldflags:
//
//	-X github.com/friendsincode/tokencast/internal/version.Version=X.Y.Z
var Version = "0.1.0"

// Commit is the source revision, set at build time like Version.
var Commit = "unknown"

// String formats the version for logs and the CLI.
func String() string {
	return fmt.Sprintf("tokencast %s (%s)", Version, Commit)
}
