// Package run implements the coordinator that fetches the current event
// data from the CdE Datenbank and launches the optimizer on it.
package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cdetools/cdecao/cdedb"
	"github.com/cdetools/cdecao/config"
)

// exportFileName is the well-known name of the written export file.
const exportFileName = "quick_partial_export.json"

// defaultOptimizerBin is used when no optimizer binary is configured.
const defaultOptimizerBin = "cdecao"

// Run fetches the quick partial export of the configured event from the
// CdE Datenbank, stores it as "quick_partial_export.json" and runs the
// optimizer on it. All arguments are forwarded verbatim to the optimizer's
// solve command, after the export file path and the --cde flag; the run
// command parses none of them itself. The optimizer reports failures on
// its own output and its exit status is not propagated.
func Run(args []string) error {
	conf := config.GetConfig()

	export, err := cdedb.QuickPartialExport(context.Background())
	if err != nil {
		return fmt.Errorf("fetching quick partial export: %w", err)
	}

	exportPath, err := ExportPath(conf)
	if err != nil {
		return err
	}
	if err := os.WriteFile(exportPath, export, 0644); err != nil {
		return fmt.Errorf("writing export file: %w", err)
	}

	bin := conf.Bins.Cdecao
	if bin == "" {
		bin = defaultOptimizerBin
	}
	cmdArgs := BuildArgs(bin, exportPath, args)
	fmt.Printf("Running '%s'.\n", strings.Join(cmdArgs, " "))

	cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("optimizer not found, may not be installed: %s", bin)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The optimizer reports its failures on the inherited
			// stderr; a non-zero exit status is not an error here.
			return nil
		}
		return err
	}
	return nil
}

// ExportPath returns the absolute path the export file is written to: the
// configured exports directory, or the directory of the running executable
// if none is configured.
func ExportPath(conf *config.Config) (string, error) {
	if conf.Dirs.Exports != "" {
		return filepath.Abs(filepath.Join(conf.Dirs.Exports, exportFileName))
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating executable: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), exportFileName), nil
}

// BuildArgs assembles the full optimizer command line: the solve command on
// the export file in CdE Datenbank format, followed by all forwarded
// arguments.
func BuildArgs(bin, exportPath string, forwarded []string) []string {
	return append([]string{bin, "solve", exportPath, "--cde"}, forwarded...)
}
