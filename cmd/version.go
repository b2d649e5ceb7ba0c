// Package cmd holds the small set of subcommands main.go dispatches to,
// one file per command, kept small since kruda has no ingest/digest/query
// pipeline to drive.
package cmd

import (
	"github.com/logv/kruda/internal/klog"
)

// Version is kruda's release tag. There is no build-time stamping here;
// it only needs to be bumped by hand.
const Version = "0.1.0"

// RunVersionCmdLine prints the module version.
func RunVersionCmdLine() {
	klog.Print("kruda " + Version)
}
