// Package version reports the build that is running.
//
// Version, commit, branch and build time are set at link time:
//
//	go build -ldflags "-X github.com/kbukum/tsengine/version.Version=0.2.0" ./cmd/tsengine
//
// Anything left unset is filled from the VCS stamp the Go toolchain embeds.
package version
