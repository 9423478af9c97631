package main

import (
	"fmt"
	"io"
	"os"
)

// command describes a CLI subcommand.
type command struct {
	name  string
	short string
	usage string
	long  string
	run   func(args []string) error
}

var commands = []command{
	{
		name:  "serve",
		short: "Serve the REST API",
		usage: "flowgen serve [-listen-addr addr]",
		long: `Serve the REST API over HTTP.

Projects are kept in the configured store (libsql, postgres or memory) and
store maintenance runs on the configured cron schedule. SIGHUP reloads
~/.flowgen/settings.json; the log level applies at once, other changes are
reported and take effect on restart.
`,
		run: runServe,
	},
	{
		name:  "mcp",
		short: "Serve the MCP tools over stdio",
		usage: "flowgen mcp",
		long: `Serve the flowgen MCP tools on stdin and stdout. Logs go to stderr.
`,
		run: runMCP,
	},
	{
		name:  "init",
		short: "Write ~/.flowgen/settings.json",
		usage: "flowgen init [flags]",
		long: `Write the settings file from the given flags, then ask a running server
to reload it.
`,
		run: runInit,
	},
	{
		name:  "validate",
		short: "Validate every diagram of a project document",
		usage: "flowgen validate <project.json|project.yaml>",
		long: `Print the validation report of every diagram. Exits non-zero when any
diagram has errors.
`,
		run: runValidate,
	},
	{
		name:  "generate",
		short: "Generate source code from a project document",
		usage: "flowgen generate [-target python|go] [-o file] <project>",
		long: `Generate one program per diagram and print the rendered source, or write
it to -o.
`,
		run: runGenerate,
	},
	{
		name:  "program",
		short: "Print the structured programs of a project document",
		usage: "flowgen program [-jq expr] <project>",
		long: `Print the structured programs as JSON. With -jq, print the results of the
jq expression evaluated over {name, variables, programs}.
`,
		run: runProgram,
	},
	{
		name:  "diagram",
		short: "Draw a diagram of a project document",
		usage: "flowgen diagram [-diagram id] [-format mermaid|ascii|png|svg|dot] [-o file] <project>",
		long: `Draw one diagram with its validation findings. Defaults to the first
diagram in Mermaid syntax. Binary formats need -o.
`,
		run: runDiagram,
	},
	{
		name:  "run",
		short: "Run a project document",
		usage: "flowgen run [-inputs tokens] <project>",
		long: `Run every diagram concurrently against the given input tokens and print
the outputs.
`,
		run: runRun,
	},
	{
		name:  "trials",
		short: "Run test cases against a project document",
		usage: "flowgen trials -cases cases.json [-k n] <project>",
		long: `Run each case of cases.json ([{"input": "...", "expected": "..."}]) k
times and report mismatches. Exits non-zero when any trial fails.
`,
		run: runTrials,
	},
	{
		name:  "version",
		short: "Print the version",
		usage: "flowgen version",
		long:  "Print the version.\n",
		run:   runVersion,
	},
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "flowgen - flowcharts to structured programs\n\n")
	fmt.Fprintf(w, "Usage:\n  flowgen <command> [arguments]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.short)
	}
	fmt.Fprintf(w, "\nRun 'flowgen help <command>' for details on a specific command.\n")
}

func printCommandHelp(w io.Writer, name string) {
	for _, cmd := range commands {
		if cmd.name == name {
			fmt.Fprintf(w, "Usage: %s\n\n%s", cmd.usage, cmd.long)
			return
		}
	}
	fmt.Fprintf(w, "flowgen: unknown command %q\n\nRun 'flowgen help' for usage.\n", name)
}

func dispatch(args []string) error {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(os.Stdout)
		return nil
	}
	if args[0] == "help" {
		if len(args) >= 2 {
			printCommandHelp(os.Stdout, args[1])
		} else {
			printUsage(os.Stdout)
		}
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(args[1:])
		}
	}
	return fmt.Errorf("unknown command %q\n\nRun 'flowgen help' for usage.", args[0])
}

func main() {
	if err := dispatch(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "flowgen: %v\n", err)
		os.Exit(1)
	}
}
