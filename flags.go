package actionqueue

import (
	"fmt"
	"strings"
)

// Flags is the capability set carried by an action.
type Flags uint8

const (
	// None carries no special behavior.
	None Flags = 0
	// Creational authorizes the creation of the queue for the action key.
	Creational Flags = 1 << 0
	// Blocking holds the queue exclusively until the action finishes.
	Blocking Flags = 1 << 1
	// Terminating destroys the queue once the action succeeds. It is blocking by definition.
	Terminating Flags = 1<<2 | Blocking
	// Unqueued bypasses per-key ordering entirely (fire and forget).
	Unqueued Flags = 1 << 3
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{Creational, "creational"},
	{Terminating, "terminating"},
	{Blocking, "blocking"},
	{Unqueued, "unqueued"},
}

// Has reports whether every bit of v is set in f.
func (f Flags) Has(v Flags) bool {
	return f&v == v
}

func (f Flags) String() string {
	if f == None {
		return "none"
	}
	parts := make([]string, 0, len(flagNames))
	rest := f
	for _, fn := range flagNames {
		if rest.Has(fn.flag) {
			parts = append(parts, fn.name)
			rest &^= fn.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseFlags parses a "|" or "," separated list of flag names.
func ParseFlags(s string) (Flags, error) {
	var out Flags
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ',' || r == ' '
	})
	for _, field := range fields {
		f, err := parseFlag(field)
		if err != nil {
			return None, err
		}
		out |= f
	}
	return out, nil
}

func parseFlag(name string) (Flags, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "none" || name == "" {
		return None, nil
	}
	for _, fn := range flagNames {
		if fn.name == name {
			return fn.flag, nil
		}
	}
	return None, newConfigError(fmt.Sprintf("unknown action flag %q", name))
}

// Priority orders finishers; higher priorities run first.
type Priority int

const (
	Lowest Priority = iota
	BelowNormal
	Normal
	AboveNormal
	Highest
)

func (p Priority) String() string {
	switch p {
	case Lowest:
		return "lowest"
	case BelowNormal:
		return "below_normal"
	case Normal:
		return "normal"
	case AboveNormal:
		return "above_normal"
	case Highest:
		return "highest"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Affinity selects where a callback runs.
type Affinity int

const (
	// OnWorker runs the callback on the goroutine executing the action.
	OnWorker Affinity = iota
	// OnExclusive runs the callback on the exclusive execution context.
	OnExclusive
)

func (a Affinity) String() string {
	if a == OnExclusive {
		return "exclusive"
	}
	return "worker"
}

func affinityOf(exclusive bool) Affinity {
	if exclusive {
		return OnExclusive
	}
	return OnWorker
}
