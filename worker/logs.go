package worker

import (
	"os"
	"regexp"
	"strings"
)

var colorCodes = regexp.MustCompile(`(\x1b\[)([\d]+;[\d]+;)?[\d]+m`)

// FilterColors strips terminal color escapes from a log.
func FilterColors(content string) string {
	return colorCodes.ReplaceAllString(content, "")
}

// Traceback returns content from the first "Traceback" on, or all of
// content when there is none.
func Traceback(content string) string {
	if i := strings.Index(content, "Traceback"); i > 0 {
		return content[i:]
	}
	return content
}

// ErrorMessage reads a submission log and returns its cleaned traceback.
// A missing log gives an empty message.
func ErrorMessage(logPath string) string {
	b, err := os.ReadFile(logPath)
	if err != nil {
		return ""
	}
	return Traceback(FilterColors(string(b)))
}
