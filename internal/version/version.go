/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build version information.
package version

// Version is the current version of Slateboard.
// This is set at build time via ldflags:
//
//	-X github.com/slateboard/slateboard/internal/version.Version=X.Y.Z
var Version = "0.9.3"
