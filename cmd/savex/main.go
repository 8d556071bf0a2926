package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	if err := run(os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(command string, args []string, out io.Writer) error {
	switch command {
	case "init":
		return initCommand(args, out)
	case "inspect":
		return inspectCommand(args, out)
	case "keygen":
		return keygenCommand(args, out)
	case "put":
		return putCommand(args, out)
	case "get":
		return getCommand(args, out)
	case "list":
		return listCommand(args, out)
	case "rm":
		return rmCommand(args, out)
	case "rewrap":
		return rewrapCommand(args, out)
	case "version":
		versionCommand(out)
		return nil
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  init      Initialize configuration file\n")
	fmt.Fprintf(os.Stderr, "  inspect   Show the layout of a dump file\n")
	fmt.Fprintf(os.Stderr, "  keygen    Generate a cipher key or passphrase salt\n")
	fmt.Fprintf(os.Stderr, "  put       Store a dump file and record it in the catalog\n")
	fmt.Fprintf(os.Stderr, "  get       Fetch the latest dump recorded under a name\n")
	fmt.Fprintf(os.Stderr, "  list      List catalog entries\n")
	fmt.Fprintf(os.Stderr, "  rm        Delete a catalog entry and its object\n")
	fmt.Fprintf(os.Stderr, "  rewrap    Re-encrypt the data key of a dump under another key\n")
	fmt.Fprintf(os.Stderr, "  version   Show version information\n")
	fmt.Fprintf(os.Stderr, "\nRun '%s <command> -h' for help on a specific command.\n", os.Args[0])
}
