package mixins

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

const MaxMessageLen = 1000

// Truncate cuts a message to MaxMessageLen characters, marking the cut.
func Truncate(msg string) string {
	if utf8.RuneCountInString(msg) <= MaxMessageLen {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:MaxMessageLen]) + "... (truncated)"
}

/*
	The failure message for a process that exited nonzero: whatever it
	said on stderr, or a stock line if it said nothing.

	Only as much of the log as could survive truncation is read.
*/
func ExitMessage(stderrPath string, exitCode int) string {
	var body []byte
	if f, err := os.Open(stderrPath); err == nil {
		body, _ = io.ReadAll(io.LimitReader(f, utf8.UTFMax*(MaxMessageLen+1)))
		f.Close()
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Sprintf("Process exited with code %d", exitCode)
	}
	return Truncate(msg)
}
