// Package priority defines the fixed request priority levels and the static
// table that assigns a level to every entity type.
package priority

import (
	"fmt"
	"strings"
)

// Level is a scheduling priority. Higher values are dispatched first.
type Level int

const (
	Low Level = iota
	Normal
	High
	Critical
)

// String returns the lower-case name of the level.
func (l Level) String() string {
	switch l {
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// IsCritical reports whether l belongs to the group that batch loads resolve
// sequentially ahead of everything else (Critical and High).
func (l Level) IsCritical() bool {
	return l >= High
}

// ParseLevel converts a level name (case-insensitive) into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return Low, nil
	case "normal":
		return Normal, nil
	case "high":
		return High, nil
	case "critical":
		return Critical, nil
	}
	return Normal, fmt.Errorf("priority: unknown level %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler so levels can be decoded
// straight from configuration files.
func (l *Level) UnmarshalText(text []byte) error {
	v, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}
