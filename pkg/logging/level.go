package logging

import "fmt"

// Level specifies a logging level.
type Level uint8

const (
	// LevelError enables only error messages.
	LevelError Level = iota
	// LevelWarning enables error and warning messages.
	LevelWarning
	// LevelInfo enables error, warning, and informational messages.
	LevelInfo
	// LevelDetailed enables error, warning, informational, and detailed
	// messages.
	LevelDetailed
	// LevelDebug enables all messages, including debugging output.
	LevelDebug
)

// levelNames maps levels to their names, matching the CLI's --loglevel
// values (0 through 4).
var levelNames = [...]string{
	LevelError:    "error",
	LevelWarning:  "warning",
	LevelInfo:     "info",
	LevelDetailed: "detailed",
	LevelDebug:    "debug",
}

// String returns a human-readable representation of the level.
func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("Level(%d)", uint8(l))
}

// NameToLevel converts a numeric --loglevel value into a Level. It returns
// an error if the value is out of range.
func NameToLevel(value int) (Level, error) {
	if value < 0 || value > int(LevelDebug) {
		return 0, fmt.Errorf("log level %d out of range [0, %d]", value, LevelDebug)
	}
	return Level(value), nil
}
