package session

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/foxseedlab/genkaipoint/internal/genkai"
	"github.com/spf13/pflag"
	"github.com/xhit/go-str2duration/v2"
)

const (
	defaultGraphSize = 5
	minGraphSize     = 1
	maxGraphSize     = 11
)

var errHelpRequested = errors.New("help requested")

type commandKind int

const (
	commandHelp commandKind = iota
	commandShow
	commandRanking
	commandGraph
)

func (k commandKind) String() string {
	switch k {
	case commandShow:
		return "show"
	case commandRanking:
		return "ranking"
	case commandGraph:
		return "graph"
	default:
		return "help"
	}
}

type command struct {
	kind    commandKind
	formula string

	// show
	targetUserID string

	// ranking
	sortKey           genkai.SortKey
	direction         genkai.Direction
	includeBots       bool
	inactiveThreshold time.Duration

	// graph
	graphSize int
}

// parseCommand parses the words following the command prefix.
func parseCommand(args []string, defaultFormula string) (command, error) {
	if len(args) == 0 {
		return command{kind: commandHelp}, nil
	}

	switch args[0] {
	case "help", "-h", "--help":
		return command{kind: commandHelp}, nil
	case "show":
		return parseShow(args[1:], defaultFormula)
	case "ranking":
		return parseRanking(args[1:], defaultFormula)
	case "graph":
		return parseGraph(args[1:], defaultFormula)
	default:
		return command{}, fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func newFlagSet(name, defaultFormula string, formula *string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(formula, "formula", defaultFormula, "scoring formula (v1 or v2)")
	return flagSet
}

func parseFlags(flagSet *pflag.FlagSet, args []string) error {
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errHelpRequested
		}
		return err
	}
	return nil
}

func parseShow(args []string, defaultFormula string) (command, error) {
	cmd := command{kind: commandShow}
	flagSet := newFlagSet("show", defaultFormula, &cmd.formula)
	if err := parseFlags(flagSet, args); err != nil {
		return command{}, err
	}
	switch rest := flagSet.Args(); len(rest) {
	case 0:
	case 1:
		cmd.targetUserID = parseUserReference(rest[0])
		if cmd.targetUserID == "" {
			return command{}, fmt.Errorf("invalid user: %q", rest[0])
		}
	default:
		return command{}, fmt.Errorf("unexpected argument: %s", rest[1])
	}
	return cmd, nil
}

func parseRanking(args []string, defaultFormula string) (command, error) {
	cmd := command{kind: commandRanking}
	var invert, includeInactive bool
	var threshold string

	flagSet := newFlagSet("ranking", defaultFormula, &cmd.formula)
	flagSet.BoolVar(&invert, "invert", false, "show the lowest first")
	flagSet.BoolVar(&cmd.includeBots, "include-bot", false, "include bot accounts")
	flagSet.BoolVar(&includeInactive, "include-inactive", false, "include users inactive longer than the threshold")
	flagSet.StringVar(&threshold, "inactive-threshold", "30d", "inactivity threshold such as 30d, 2w or 12h")
	if err := parseFlags(flagSet, args); err != nil {
		return command{}, err
	}

	rest := flagSet.Args()
	if len(rest) > 1 {
		return command{}, fmt.Errorf("unexpected argument: %s", rest[1])
	}
	key := ""
	if len(rest) == 1 {
		key = rest[0]
	}
	sortKey, err := genkai.ParseSortKey(key)
	if err != nil {
		return command{}, err
	}
	cmd.sortKey = sortKey

	if invert {
		cmd.direction = genkai.Ascending
	}
	if !includeInactive {
		d, err := str2duration.ParseDuration(threshold)
		if err != nil {
			return command{}, fmt.Errorf("invalid --inactive-threshold %q: %w", threshold, err)
		}
		if d < 0 {
			return command{}, fmt.Errorf("--inactive-threshold must not be negative")
		}
		cmd.inactiveThreshold = d
	}
	return cmd, nil
}

func parseGraph(args []string, defaultFormula string) (command, error) {
	cmd := command{kind: commandGraph, graphSize: defaultGraphSize}
	flagSet := newFlagSet("graph", defaultFormula, &cmd.formula)
	if err := parseFlags(flagSet, args); err != nil {
		return command{}, err
	}
	switch rest := flagSet.Args(); len(rest) {
	case 0:
	case 1:
		n, err := strconv.Atoi(rest[0])
		if err != nil {
			return command{}, fmt.Errorf("invalid graph size %q", rest[0])
		}
		cmd.graphSize = clampGraphSize(n)
	default:
		return command{}, fmt.Errorf("unexpected argument: %s", rest[1])
	}
	return cmd, nil
}

func clampGraphSize(n int) int {
	return min(max(n, minGraphSize), maxGraphSize)
}

// parseUserReference accepts a raw snowflake or a <@id> / <@!id> mention.
func parseUserReference(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<@") && strings.HasSuffix(s, ">") {
		s = strings.TrimPrefix(strings.TrimSuffix(strings.TrimPrefix(s, "<@"), ">"), "!")
	}
	if s == "" {
		return ""
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return s
}

func commandUsage(prefix string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "```\n")
	fmt.Fprintf(&b, "%s show [user]\n", prefix)
	fmt.Fprintf(&b, "%s ranking [point|duration|efficiency] [--invert] [--include-bot] [--include-inactive] [--inactive-threshold 30d]\n", prefix)
	fmt.Fprintf(&b, "%s graph [n]  (n: %d-%d, default %d)\n", prefix, minGraphSize, maxGraphSize, defaultGraphSize)
	fmt.Fprintf(&b, "%s help\n", prefix)
	fmt.Fprintf(&b, "\nall subcommands accept --formula v1|v2\n")
	fmt.Fprintf(&b, "```")
	return b.String()
}
