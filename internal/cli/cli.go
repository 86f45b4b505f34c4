// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command parsing and dispatch for vibe.
package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Output streams. Tests replace them.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	stdin  io.Reader = os.Stdin
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdHelp Command = iota
	CmdAsk
	CmdChat
	CmdFiles
	CmdEdit
	CmdPreview
	CmdUsage
	CmdModels
	CmdConfig
	CmdSessions
	CmdVersion
)

var commandNames = map[Command]string{
	CmdHelp:     "help",
	CmdAsk:      "ask",
	CmdChat:     "chat",
	CmdFiles:    "files",
	CmdEdit:     "edit",
	CmdPreview:  "preview",
	CmdUsage:    "usage",
	CmdModels:   "models",
	CmdConfig:   "config",
	CmdSessions: "sessions",
	CmdVersion:  "version",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet    bool
	Verbose  bool
	JSON     bool
	Offline  bool
	Model    string
	Thinking string

	// Command-specific
	Query      string
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// Raw args (remaining after the command word)
	Raw []string
}

const usageText = `vibe - describe an app, get working files

Usage:
  vibe ask "build a pomodoro timer"    One request; files are printed or written
  vibe chat                            Interactive session
  vibe files [reply.md|-]              Split a model reply into project files
  vibe edit <file> [edits|-]           Apply <<<EDIT>>> blocks to a file
  vibe preview [dir]                   Serve a project on a local preview server
  vibe usage [show|history|plans|reset]
  vibe models                          List models and thinking levels
  vibe config [show|get|set|path]      View and modify settings
  vibe sessions [list|show|export|delete|search|clear]
  vibe version
  vibe help

Global flags:
  --model <key>        Model: thinking, pro, 600b, research
  --thinking <level>   Thinking level: low, mid, high, extra-high
  --offline            Block every network call except loopback endpoints
  -q, --quiet          Only print results
  -v, --verbose        Debug logging
  --json               Machine-readable output

Ask flags:
  --chat               Answer conversationally instead of building
  --research <mode>    Research assistant: chat, deep or web
  --fast               Skip the planning step
  --persona <text>     Persona injected into build requests
  --dir <path>         Load an existing project; edits are applied to it
  --out <path>         Write generated files here
  --session <ref>      Continue a saved session (index, ID or prefix)
  --no-save            Do not save the exchange as a session

Edit flags:
  -i, --instruction    Ask the model for the edits instead of reading them
  --dry-run            Show the diff without writing

Preview flags:
  --addr <host:port>   Loopback address (default 127.0.0.1:8765)
  --session <ref>      Serve the files of a saved session

Sessions:
  vibe sessions list                   Newest first
  vibe sessions show <ref>             Transcript and files
  vibe sessions export <ref> --format md|html|json [--out dir]
  vibe sessions delete <ref> --confirm
  vibe sessions search <text>
  vibe sessions clear --confirm

Environment:
  VIBECODE_API_URL, VIBECODE_API_KEY, VIBECODE_MODEL, VIBECODE_THINKING,
  VIBECODE_OFFLINE, VIBECODE_LOG_LEVEL, VIBECODE_PLAN, NO_COLOR
`

// PrintUsage prints the help text.
func PrintUsage() {
	fmt.Fprint(stdout, usageText)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Fprintf(stdout, "vibe %s (commit %s, built %s, %s)\n", Version, GitCommit, BuildDate, runtime.Version())
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses argv without the program name. A first word that is not
// a command is treated as an ask query.
func ParseArgs(argv []string) (Command, Args) {
	remaining, parsed := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdHelp, parsed
	}

	word := strings.ToLower(remaining[0])
	rest := remaining[1:]
	parsed.Raw = rest

	switch word {
	case "ask", "a":
		parsed.Query = joinPositional(rest)
		return CmdAsk, parsed
	case "chat", "c":
		return CmdChat, parsed
	case "files", "f":
		parsed.Subcommand = firstPositional(rest)
		return CmdFiles, parsed
	case "edit", "e":
		parsed.Subcommand = firstPositional(rest)
		return CmdEdit, parsed
	case "preview", "serve":
		parsed.Subcommand = firstPositional(rest)
		return CmdPreview, parsed
	case "usage", "credits":
		parsed.Subcommand = firstPositional(rest)
		return CmdUsage, parsed
	case "models", "model":
		return CmdModels, parsed
	case "config":
		parseConfigArgs(&parsed, rest)
		return CmdConfig, parsed
	case "sessions", "session":
		parsed.Subcommand = firstPositional(rest)
		return CmdSessions, parsed
	case "version", "--version":
		return CmdVersion, parsed
	case "help", "-h", "--help":
		return CmdHelp, parsed
	default:
		parsed.Raw = remaining
		parsed.Query = joinPositional(remaining)
		return CmdAsk, parsed
	}
}

// globalBoolFlags are recognised anywhere on the command line.
var globalBoolFlags = map[string]func(*Args){
	"-q":        func(a *Args) { a.Quiet = true },
	"--quiet":   func(a *Args) { a.Quiet = true },
	"-v":        func(a *Args) { a.Verbose = true },
	"--verbose": func(a *Args) { a.Verbose = true },
	"--json":    func(a *Args) { a.JSON = true },
	"--offline": func(a *Args) { a.Offline = true },
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsed Args

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if set, ok := globalBoolFlags[arg]; ok {
			set(&parsed)
			continue
		}
		switch {
		case arg == "--model" || arg == "-m":
			if i+1 < len(args) {
				i++
				parsed.Model = args[i]
			}
		case strings.HasPrefix(arg, "--model="):
			parsed.Model = strings.TrimPrefix(arg, "--model=")
		case arg == "--thinking" || arg == "-t":
			if i+1 < len(args) {
				i++
				parsed.Thinking = args[i]
			}
		case strings.HasPrefix(arg, "--thinking="):
			parsed.Thinking = strings.TrimPrefix(arg, "--thinking=")
		default:
			remaining = append(remaining, arg)
		}
	}

	return remaining, parsed
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) {
	pos := positionalOnly(remaining)
	if len(pos) > 0 {
		args.Subcommand = pos[0]
	}
	if len(pos) > 1 {
		args.ConfigKey = pos[1]
	}
	if len(pos) > 2 {
		args.ConfigVal = strings.Join(pos[2:], " ")
	}
}

func firstPositional(rest []string) string {
	if pos := positionalOnly(rest); len(pos) > 0 {
		return pos[0]
	}
	return ""
}

// joinPositional joins the query words of an ask command, skipping ask flags
// and their values.
func joinPositional(rest []string) string {
	return strings.Join(NewArgParser(rest, askBoolFlags...).Positionals(), " ")
}

func positionalOnly(rest []string) []string {
	var out []string
	for _, a := range rest {
		if !strings.HasPrefix(a, "-") {
			out = append(out, a)
		}
	}
	return out
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run executes cmd and returns the process exit code.
func Run(cmd Command, args Args) int {
	var err error
	switch cmd {
	case CmdAsk:
		err = HandleAsk(args)
	case CmdChat:
		err = HandleChat(args)
	case CmdFiles:
		err = HandleFiles(args)
	case CmdEdit:
		err = HandleEdit(args)
	case CmdPreview:
		err = HandlePreview(args)
	case CmdUsage:
		err = HandleUsage(args)
	case CmdModels:
		err = HandleModels(args)
	case CmdConfig:
		err = HandleConfig(args)
	case CmdSessions:
		err = HandleSessions(args)
	case CmdVersion:
		err = HandleVersion(args)
	default:
		PrintUsage()
	}

	if err != nil {
		DisplayError(err, args.JSON)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// HandleVersion handles the "version" command.
func HandleVersion(args Args) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Print()
	}
	PrintVersion()
	return nil
}
