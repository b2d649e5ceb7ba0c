// Package klog is the module's ambient logger: Debug output gated behind
// a flag, Warn/Error always on. A handful of free functions writing
// through fmt and log directly, rather than a logging interface or a
// per-caller logger value.
package klog

import (
	"fmt"
	"log"
	"os"
)

var envFlag = os.Getenv("KRUDA_DEBUG")

// Enabled toggles Debug output at runtime, e.g. from internal/config.
var Enabled = envFlag != ""

func Print(args ...interface{}) {
	fmt.Println(args...)
}

func Warn(args ...interface{}) {
	fmt.Fprintln(os.Stderr, append([]interface{}{"warning:"}, args...)...)
}

func Debug(args ...interface{}) {
	if Enabled {
		log.Println(args...)
	}
}

func Error(args ...interface{}) {
	fmt.Fprintln(os.Stderr, append([]interface{}{"error:"}, args...)...)
}
