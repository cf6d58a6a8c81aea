package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cdetools/cdecao/run"
	"github.com/cdetools/cdecao/serve"
	"github.com/cdetools/cdecao/solve"
	"github.com/cdetools/cdecao/util"
)

// Main file for all-in-one build

var helpText = `cdecao - CdE course assignment optimizer

Commands:
  run      fetch the event export from the CdE Datenbank and run the optimizer
  solve    solve a course assignment problem from a file
  serve    run the HTTP assignment service
  version  print version information`

func runCmd(cmd string, args []string) (bool, error) {
	var err error
	switch cmd {
	case "run":
		err = run.Run(args)
	case "solve":
		err = solve.Run(args)
	case "serve":
		err = serve.Run(args)
	case "version", "--version":
		fmt.Println(util.Version())
	case "-h", "--help", "help":
		fmt.Println(helpText)
	default:
		// Unknown command
		return false, nil
	}
	return true, err
}

func main() {
	if len(os.Args) == 1 {
		fmt.Println(helpText)
		return
	}

	util.SetupLogging()

	// Try to run command based on binary name
	// Might have been symlinked with different names
	ok, err := runCmd(filepath.Base(os.Args[0]), os.Args[1:])
	if !ok {
		// If that failed, then use the second arg: ./cdecao solve ...
		ok, err = runCmd(os.Args[1], os.Args[2:])
	}
	if !ok {
		// If that fails too then give up
		fmt.Fprintln(os.Stderr, "unknown command")
		os.Exit(1)
	}

	// Command was run, either successfully or with error
	util.Fatal(err)
}
