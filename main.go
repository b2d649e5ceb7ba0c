package main

import cmd "github.com/logv/kruda/cmd"

import "fmt"
import "os"
import "log"
import "sort"

var cmdFuncs = make(map[string]func())
var cmdKeys = make([]string, 0)

func setupCommands() {
	cmdFuncs["demo"] = cmd.RunDemoCmdLine
	cmdFuncs["inspect"] = cmd.RunInspectCmdLine
	cmdFuncs["version"] = cmd.RunVersionCmdLine

	for k := range cmdFuncs {
		cmdKeys = append(cmdKeys, k)
	}
}

// USAGE explains kruda's command line.
var USAGE = `kruda: an in-memory tabular data engine

Commands: demo, inspect, version

  demo: build a small in-memory table and run a sample filter over it

    example: kruda demo

  inspect: print the demo table's schema

    example: kruda inspect

  version: print the module version

    example: kruda version
`

func printCommandHelp() {
	sort.Strings(cmdKeys)

	fmt.Print(USAGE)
	log.Fatal()
}

func main() {
	setupCommands()

	if len(os.Args) < 2 {
		printCommandHelp()
	}

	firstArg := os.Args[1]
	os.Args = os.Args[1:]

	handler, ok := cmdFuncs[firstArg]
	if !ok {
		printCommandHelp()
	}

	handler()
}
