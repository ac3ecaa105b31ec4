// Package database runs commands against a relational database inside a
// transaction per call and turns driver results into records or entities.
//
// The package only talks to the driver boundary declared in interface.go:
// concrete drivers live in the postgres, mysql, sqlite and sqldb
// subpackages, and nothing above this package imports them directly.
//
// Usage:
//
//	exec := database.NewExecutor(connector, database.WithLogger(log))
//	n, err := exec.Execute(ctx, database.NewCommand("DELETE FROM Customer WHERE Id = 4;"))
package database

import (
	"fmt"
	"strings"
	"time"
)

// Command is a unit of SQL text sent to the driver.
type Command struct {
	Text string
	Args []any

	// Timeout bounds this command; zero falls back to the executor's
	// CommandTimeout.
	Timeout time.Duration
}

// NewCommand returns a Command for text with positional arguments.
func NewCommand(text string, args ...any) Command {
	return Command{Text: text, Args: args}
}

// WithTimeout returns a copy of c bounded by d.
func (c Command) WithTimeout(d time.Duration) Command {
	c.Timeout = d
	return c
}

func (c Command) String() string {
	return c.Text
}

// IsolationLevel is the transaction isolation requested from the driver.
type IsolationLevel int

const (
	// LevelDefault leaves the choice to the driver or server.
	LevelDefault IsolationLevel = iota
	LevelReadUncommitted
	LevelReadCommitted
	LevelRepeatableRead
	LevelSerializable
)

func (l IsolationLevel) String() string {
	switch l {
	case LevelReadUncommitted:
		return "read_uncommitted"
	case LevelReadCommitted:
		return "read_committed"
	case LevelRepeatableRead:
		return "repeatable_read"
	case LevelSerializable:
		return "serializable"
	default:
		return "default"
	}
}

// ParseIsolation parses the names produced by IsolationLevel.String. Spaces
// and dashes are accepted in place of underscores.
func ParseIsolation(s string) (IsolationLevel, error) {
	norm := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch norm {
	case "", "default":
		return LevelDefault, nil
	case "read_uncommitted":
		return LevelReadUncommitted, nil
	case "read_committed":
		return LevelReadCommitted, nil
	case "repeatable_read":
		return LevelRepeatableRead, nil
	case "serializable":
		return LevelSerializable, nil
	}
	return LevelDefault, fmt.Errorf("unknown isolation level %q", s)
}
