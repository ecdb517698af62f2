// Package log is a group-scoped leveled diagnostic sink. It is a side
// channel only; nothing in the IR depends on what gets printed.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"

	"github.com/fatih/color"
)

var (
	sink     = stdlog.New(os.Stderr, "", 0)
	groupTag = color.New(color.FgCyan).SprintFunc()
)

// SetOutput redirects every group.
func SetOutput(w io.Writer) {
	sink.SetOutput(w)
}

// Logger writes messages for one group.
type Logger struct {
	group    string
	registry *GroupRegistry
}

// Group returns a logger bound to the process-wide registry.
func Group(name string) *Logger {
	return &Logger{group: name, registry: registry}
}

func (l *Logger) Name() string {
	return l.group
}

func (l *Logger) Enabled(level int) bool {
	return l.registry.shouldLog(l.group, level)
}

func (l *Logger) Log(level int, args ...any) {
	if !l.Enabled(level) {
		return
	}
	sink.Print(groupTag("["+l.group+"]"), " ", fmt.Sprint(args...))
}

func (l *Logger) Logf(level int, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	sink.Print(groupTag("["+l.group+"]"), " ", fmt.Sprintf(format, args...))
}
