package hooks

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestCallsite(t *testing.T) {
	stack := strings.Join([]string{
		"goroutine 1 [running]:",
		"runtime/debug.Stack()",
		"\t/usr/lib/go/src/runtime/debug/stack.go:24 +0x5e",
		"github.com/sirupsen/logrus.(*Entry).Info(...)",
		"\t/go/pkg/mod/github.com/sirupsen/logrus@v1.9.3/entry.go:314 +0x1",
		"github.com/glemaitre/ramp-board-1/dispatcher.(*Dispatcher).Fetch()",
		"\t/src/ramp-board-1/dispatcher/dispatcher.go:120 +0x2a",
		"",
	}, "\n")
	if got := callsite(stack); got != "dispatcher/dispatcher.go:120" {
		t.Fatalf("Unexpected callsite %q", got)
	}
}

func TestFireAddsField(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.Out = &buf
	logger.AddHook(NewContextHook())
	logger.Info("hello")
	if !strings.Contains(buf.String(), "file:line") {
		t.Fatalf("Expected file:line field, got %q", buf.String())
	}
}
