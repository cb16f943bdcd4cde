package hooks

import (
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
)

// Trimmed from the front of file paths reported by the hook.
const repoMarker = "ramp-board-1/"

type contextHook struct{}

// NewContextHook adds the "file:line" of the logging callsite to every entry.
func NewContextHook() contextHook {
	return contextHook{}
}

func (hook contextHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook contextHook) Fire(entry *logrus.Entry) error {
	entry.Data["file:line"] = callsite(string(debug.Stack()))
	return nil
}

// callsite walks a goroutine dump and returns the first frame past logrus.
// Frames come as "function\n\tfile:line +0x..." pairs.
func callsite(stack string) string {
	lines := strings.Split(stack, "\n")
	inLogrus := false
	for i := 1; i+1 < len(lines); i += 2 {
		fn, file := lines[i], strings.TrimSpace(lines[i+1])
		if strings.Contains(fn, "sirupsen/logrus") {
			inLogrus = true
			continue
		}
		if !inLogrus {
			continue
		}
		if idx := strings.LastIndex(file, " +0x"); idx >= 0 {
			file = file[:idx]
		}
		parts := strings.Split(file, repoMarker)
		return parts[len(parts)-1]
	}
	return ""
}
