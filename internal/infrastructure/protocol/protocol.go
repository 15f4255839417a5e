// Package protocol decodes the colon-delimited control lines that agent
// clients send over the gateway:
//
//	HELLO
//	PAUSE:<agentId>
//	AVAIL:<agentId>
//
// Verbs are case-sensitive.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

const Delimiter = ":"

var (
	ErrUnknownVerb     = errors.New("unknown verb")
	ErrMissingArgument = errors.New("missing required argument")
)

type Verb int

const (
	VerbUnknown Verb = iota
	VerbHello
	VerbPause
	VerbAvail
)

func (v Verb) String() string {
	switch v {
	case VerbHello:
		return "HELLO"
	case VerbPause:
		return "PAUSE"
	case VerbAvail:
		return "AVAIL"
	default:
		return "UNKNOWN"
	}
}

type verbSpec struct {
	verb         Verb
	requiredArgs int
}

var verbTable = map[string]verbSpec{
	"HELLO": {verb: VerbHello, requiredArgs: 0},
	"PAUSE": {verb: VerbPause, requiredArgs: 1},
	"AVAIL": {verb: VerbAvail, requiredArgs: 1},
}

// Command is one decoded control line.
type Command struct {
	Verb Verb
	// Name is the first field as received, kept for reporting unknown verbs.
	Name string
	Args []string
	Raw  string
}

// Arg returns the i-th argument and whether it is present and non-empty.
func (c Command) Arg(i int) (string, bool) {
	if i < 0 || i >= len(c.Args) || c.Args[i] == "" {
		return "", false
	}
	return c.Args[i], true
}

// Validate checks the verb against the verb table and the argument count
// against what the verb requires.
func (c Command) Validate() error {
	spec, ok := verbTable[c.Name]
	if !ok {
		return &MalformedCommandError{Raw: c.Raw, Verb: c.Name, Err: ErrUnknownVerb}
	}
	for i := 0; i < spec.requiredArgs; i++ {
		if _, ok := c.Arg(i); !ok {
			return &MalformedCommandError{Raw: c.Raw, Verb: c.Name, Err: ErrMissingArgument}
		}
	}
	return nil
}

// Parse splits line into a Command. It accepts any input, including the empty
// string; unrecognised verbs yield VerbUnknown. A trailing line terminator is
// ignored.
func Parse(line string) Command {
	raw := strings.TrimRight(line, "\r\n")
	parts := strings.Split(raw, Delimiter)

	cmd := Command{
		Name: parts[0],
		Args: parts[1:],
		Raw:  raw,
	}
	if spec, ok := verbTable[cmd.Name]; ok {
		cmd.Verb = spec.verb
	}
	return cmd
}

// Decode parses and validates line. On error the returned Command is still
// populated so callers can report what was received.
func Decode(line string) (Command, error) {
	cmd := Parse(line)
	if err := cmd.Validate(); err != nil {
		return cmd, err
	}
	return cmd, nil
}

type MalformedCommandError struct {
	Raw  string
	Verb string
	Err  error
}

func (e *MalformedCommandError) Error() string {
	return fmt.Sprintf("malformed command %q (verb %q): %v", e.Raw, e.Verb, e.Err)
}

func (e *MalformedCommandError) Unwrap() error {
	return e.Err
}

// Reason returns a short label for metrics: "unknown_verb" or "missing_argument".
func (e *MalformedCommandError) Reason() string {
	switch {
	case errors.Is(e.Err, ErrUnknownVerb):
		return "unknown_verb"
	case errors.Is(e.Err, ErrMissingArgument):
		return "missing_argument"
	default:
		return "other"
	}
}
