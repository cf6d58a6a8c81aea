// Package solve implements the optimizer CLI: it reads a course assignment
// problem from a file, solves it and writes or prints the result.
package solve

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cdetools/cdecao/assignment"
	"github.com/cdetools/cdecao/caobab"
	"github.com/cdetools/cdecao/format"
)

var (
	useCdE           bool
	track            uint64
	ignoreCancelled  bool
	ignoreAssigned   bool
	roomFactorField  string
	roomOffsetField  string
	reportNoSolution bool
	roomsList        string
	roomsFile        string
	numWorkers       int
	printResult      bool
)

func Run(args []string) error {
	fs := flag.NewFlagSet("solve", flag.ContinueOnError)
	fs.BoolVar(&useCdE, "cde", false, "use CdE Datenbank format for input and output files")
	fs.BoolVar(&useCdE, "c", false, "shorthand for --cde")
	fs.Uint64Var(&track, "track", 0, "CdE Datenbank id of the course track to assign courses in (only with --cde)")
	fs.Uint64Var(&track, "t", 0, "shorthand for --track")
	fs.BoolVar(&ignoreCancelled, "ignore-cancelled", false,
		"ignore already cancelled courses; otherwise they are considered for assignment and might be un-cancelled (only with --cde)")
	fs.BoolVar(&ignoreCancelled, "i", false, "shorthand for --ignore-cancelled")
	fs.BoolVar(&ignoreAssigned, "ignore-assigned", false,
		"ignore already assigned participants instead of re-assigning them; their courses will not be cancelled (only with --cde)")
	fs.BoolVar(&ignoreAssigned, "j", false, "shorthand for --ignore-assigned")
	fs.StringVar(&roomFactorField, "room-factor-field", "",
		"name of a CdE Datenbank course field holding the scaling factor for the course size when matching rooms")
	fs.StringVar(&roomOffsetField, "room-offset-field", "",
		"name of a CdE Datenbank course field holding a fixed offset for the course size when matching rooms")
	fs.BoolVar(&reportNoSolution, "report-no-solution", false,
		"log some unsolvable branch and bound nodes, to help with debugging unsolvable problems")
	fs.StringVar(&roomsList, "rooms", "", "comma-separated list of available course room sizes, e.g. 15,10,10,8")
	fs.StringVar(&roomsList, "r", "", "shorthand for --rooms")
	fs.StringVar(&roomsFile, "rooms-file", "", "path of a JSON file describing the available course rooms")
	fs.IntVar(&numWorkers, "num-threads", 0, "number of worker threads to spawn (default: number of CPU cores)")
	fs.BoolVar(&printResult, "print", false, "print the calculated course assignment to stdout in a human readable format")
	fs.BoolVar(&printResult, "p", false, "shorthand for --print")

	// The flag package stops parsing at the first positional argument,
	// but the input file path may come before the flags (e.g. when the
	// run command assembles the command line). Re-parse after each
	// positional until everything is consumed.
	var positionals []string
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			// Error is already printed
			return fmt.Errorf("")
		}
		if fs.NArg() == 0 {
			break
		}
		positionals = append(positionals, fs.Arg(0))
		rest = fs.Args()[1:]
	}
	if len(positionals) < 1 || len(positionals) > 2 {
		fs.PrintDefaults()
		return fmt.Errorf("\nusage: solve [flags] INPUT [OUTPUT]")
	}
	inPath := positionals[0]
	outPath := ""
	if len(positionals) == 2 {
		outPath = positionals[1]
	}

	if outPath == "" && !printResult {
		slog.Warn("no OUTPUT file and no --print option given, assignment will not be exported anywhere")
	}

	rooms, roomKinds, err := parseRooms()
	if err != nil {
		return err
	}

	slog.Debug("opening input file", "path", inPath)
	file, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("could not open input file %s: %w", inPath, err)
	}
	defer file.Close()

	var participants []assignment.Participant
	var courses []assignment.Course
	var ambience format.ImportAmbience
	if useCdE {
		participants, courses, ambience, err = format.ReadCdEDB(
			file, track, ignoreCancelled, ignoreAssigned, roomFactorField, roomOffsetField)
	} else {
		participants, courses, err = format.ReadSimple(file)
	}
	if err != nil {
		return fmt.Errorf("could not read input file: %w", err)
	}
	if err := assignment.CheckConsistency(participants, courses); err != nil {
		return fmt.Errorf("inconsistent input data: %w", err)
	}

	slog.Info("read course assignment problem", "courses", len(courses), "participants", len(participants))
	slog.Debug("courses:\n" + assignment.CourseList(courses))

	if len(participants) == 0 {
		return fmt.Errorf("calculating course assignments is only possible with 1 or more participants")
	}

	result, score, stats := caobab.Solve(courses, participants, rooms, reportNoSolution, numWorkers)
	slog.Info("finished solving course assignment: " + stats.String())

	if result == nil {
		return fmt.Errorf("no feasible solution found")
	}

	slog.Info("solution found", "score", score)
	slog.Info("higher is better",
		"perfect_fit", caobab.TheoreticalMaxScore(participants, courses))
	slog.Info("solution quality (lower is better, 0.0 is perfect)",
		"quality", caobab.SolutionQuality(score, participants))

	if outPath != "" {
		if err := writeResult(outPath, result, participants, courses, ambience); err != nil {
			return err
		}
	}

	if printResult {
		var possibleRooms []string
		if roomKinds != nil {
			possibleRooms = format.RoomKindNames(result, courses, roomKinds)
		} else if rooms != nil {
			possibleRooms = format.RoomSizeLists(result, courses, rooms)
		}
		fmt.Printf("The assignment is:\n%s", assignment.Format(result, courses, participants, possibleRooms))
	}
	return nil
}

// parseRooms reads the available rooms from the --rooms list or the
// --rooms-file. Room kinds are only available with --rooms-file.
func parseRooms() ([]int, []format.RoomKind, error) {
	if roomsFile != "" {
		file, err := os.Open(roomsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open rooms file %s: %w", roomsFile, err)
		}
		defer file.Close()
		rooms, kinds, err := format.ReadRooms(file)
		if err != nil {
			return nil, nil, fmt.Errorf("could not read rooms file: %w", err)
		}
		return rooms, kinds, nil
	}
	if roomsList == "" {
		return nil, nil, nil
	}
	parts := strings.Split(roomsList, ",")
	rooms := make([]int, len(parts))
	for i, p := range parts {
		size, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, nil, fmt.Errorf("could not parse room sizes: %w", err)
		}
		rooms[i] = size
	}
	return rooms, nil, nil
}

func writeResult(
	outPath string,
	result assignment.Assignment,
	participants []assignment.Participant,
	courses []assignment.Course,
	ambience format.ImportAmbience,
) error {
	slog.Debug("opening output file", "path", outPath)
	file, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("could not open output file %s: %w", outPath, err)
	}
	defer file.Close()
	if useCdE {
		err = format.WriteCdEDB(file, result, participants, courses, ambience)
	} else {
		err = format.WriteSimpleAssignment(file, result)
	}
	if err != nil {
		return fmt.Errorf("could not write assignment to %s: %w", outPath, err)
	}
	slog.Debug("assignment written", "path", outPath)
	return nil
}
