package backend

import (
	"slices"
	"strings"

	"kvconsole/internal/apperr"
	"kvconsole/internal/constants"
)

// IsBlocked reports whether the command name is on the deny-list, ignoring case.
func IsBlocked(name string) bool {
	return slices.Contains(constants.BlockedCommands, strings.ToLower(strings.TrimSpace(name)))
}

// ParseCommandLine splits a shell line into arguments. Double-quoted
// arguments understand \n \r \t \" and \\ escapes; single-quoted ones only \'.
// A closing quote must be followed by a space or the end of the line.
func ParseCommandLine(line string) ([]string, error) {
	const op = "backend.ParseCommandLine"

	var (
		args    []string
		current strings.Builder
		inArg   bool
		quote   rune
		escaped bool
		closed  bool
	)

	for _, r := range line {
		if closed {
			if r != ' ' && r != '\t' {
				return nil, apperr.New(apperr.KindInvalidInput, op, "closing quote must be followed by a space")
			}
			closed = false
			args = append(args, current.String())
			current.Reset()
			inArg = false
			continue
		}

		switch {
		case escaped:
			if quote == '\'' && r != '\'' {
				current.WriteRune('\\')
			}
			current.WriteRune(unescape(quote, r))
			escaped = false
		case quote != 0 && r == '\\':
			escaped = true
		case quote != 0 && r == quote:
			quote = 0
			closed = true
		case quote != 0:
			current.WriteRune(r)
		case r == '"' || r == '\'':
			if inArg && current.Len() > 0 {
				current.WriteRune(r)
				continue
			}
			quote = r
			inArg = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}

	if quote != 0 || escaped {
		return nil, apperr.New(apperr.KindInvalidInput, op, "unbalanced quotes in command")
	}
	if inArg {
		args = append(args, current.String())
	}
	if len(args) == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, op, constants.MsgCommandRequired)
	}
	return args, nil
}

func unescape(quote, r rune) rune {
	if quote == '\'' {
		return r
	}
	switch r {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	default:
		return r
	}
}
