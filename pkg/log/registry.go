package log

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultLevel is the setting of a group nobody configured. Messages at
// level 0 are shown, anything more verbose is not.
const DefaultLevel = 0

// Silent disables a group entirely.
const Silent = -1

// GroupRegistry holds the verbosity of every log group.
type GroupRegistry struct {
	settings map[string]int
}

var registry = NewGroupRegistry()

// Registry returns the process-wide registry used by package-level loggers.
func Registry() *GroupRegistry {
	return registry
}

func NewGroupRegistry() *GroupRegistry {
	return &GroupRegistry{settings: make(map[string]int)}
}

func (r *GroupRegistry) GetSetting(group string) int {
	if level, ok := r.settings[group]; ok {
		return level
	}
	return DefaultLevel
}

func (r *GroupRegistry) ApplySetting(group string, level int) {
	r.settings[group] = level
}

// ApplySettings parses a comma-separated list such as "chunk=5,generate=2".
// A bare group name sets level 9.
func (r *GroupRegistry) ApplySettings(spec string) error {
	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		group, value, found := strings.Cut(item, "=")
		level := 9
		if found {
			var err error
			level, err = strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return errors.Wrapf(err, "bad level for log group %q", group)
			}
		}
		r.ApplySetting(strings.TrimSpace(group), level)
	}
	return nil
}

func (r *GroupRegistry) Groups() []string {
	var groups []string
	for g := range r.settings {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

func (r *GroupRegistry) shouldLog(group string, level int) bool {
	return level <= r.GetSetting(group)
}
