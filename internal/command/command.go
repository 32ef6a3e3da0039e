package command

import (
	"fmt"
	"strings"
	"time"
)

// Command describes a single external process invocation. Nothing is passed
// through a shell; Args are handed to the process verbatim.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Timeout overrides the runner default when positive.
	Timeout time.Duration
}

// New builds a command from an executable and its arguments.
func New(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

// Parse tokenizes a configured command line such as "npx sst deploy".
func Parse(line string) (Command, error) {
	tokens, err := parseCommand(line)
	if err != nil {
		return Command{}, err
	}
	if len(tokens) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}
	return Command{Name: tokens[0], Args: tokens[1:]}, nil
}

// With returns a copy of the command with extra arguments appended.
func (c Command) With(args ...string) Command {
	out := c
	out.Args = append(append([]string(nil), c.Args...), args...)
	return out
}

// In returns a copy of the command that runs inside dir.
func (c Command) In(dir string) Command {
	out := c
	out.Dir = dir
	return out
}

// WithTimeout returns a copy of the command bounded by timeout.
func (c Command) WithTimeout(timeout time.Duration) Command {
	out := c
	out.Timeout = timeout
	return out
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Name))
	for _, arg := range c.Args {
		parts = append(parts, quote(arg))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.ContainsAny(s, " \t\n\"'\\") {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return s
}

func parseCommand(command string) ([]string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, nil
	}
	var (
		tokens   []string
		current  strings.Builder
		inSingle bool
		inDouble bool
		escape   bool
		quoted   bool
	)

	flush := func() {
		if current.Len() > 0 || quoted {
			tokens = append(tokens, current.String())
			current.Reset()
		}
		quoted = false
	}

	for _, r := range command {
		switch {
		case escape:
			current.WriteRune(r)
			escape = false
		case r == '\\' && !inSingle:
			escape = true
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			quoted = true
		case r == '"' && !inSingle:
			inDouble = !inDouble
			quoted = true
		case (r == ' ' || r == '\t' || r == '\n' || r == '\r') && !inSingle && !inDouble:
			flush()
		default:
			current.WriteRune(r)
		}
	}

	if escape || inSingle || inDouble {
		return nil, fmt.Errorf("unterminated quoted string in command: %s", command)
	}
	flush()

	return tokens, nil
}
