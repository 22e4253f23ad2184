package orchestrator

import "fmt"

// Position says where InjectBypass places the flag.
type Position string

const (
	Prepend Position = "prepend"
	Append  Position = "append"
)

func ParsePosition(s string) (Position, error) {
	switch p := Position(s); p {
	case Prepend, Append:
		return p, nil
	case "":
		return Prepend, nil
	default:
		return "", fmt.Errorf("invalid bypass position %q", s)
	}
}

// InjectBypass returns a copy of args carrying flag exactly once. Arguments
// that already contain flag are returned unchanged.
func InjectBypass(args []string, flag string, pos Position) []string {
	for _, a := range args {
		if a == flag {
			return append([]string(nil), args...)
		}
	}
	out := make([]string, 0, len(args)+1)
	if pos == Append {
		out = append(out, args...)
		return append(out, flag)
	}
	out = append(out, flag)
	return append(out, args...)
}
