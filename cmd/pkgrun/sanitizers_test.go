package main

import (
	"regexp"
)

func paveAnsicolors(raw string) string {
	return regexp.MustCompile("\x1b"+`\[[0-9;]+m`).ReplaceAllString(raw, "")
}

func paveIds(raw string) string {
	return regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`).ReplaceAllString(raw, "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx")
}

func paveDurations(raw string) string {
	raw = regexp.MustCompile(`\([0-9]+ ms\)`).ReplaceAllString(raw, "(N ms)")
	return regexp.MustCompile(`in [0-9]+ ms`).ReplaceAllString(raw, "in N ms")
}

func paveDigests(raw string) string {
	return regexp.MustCompile(`sha256:[0-9a-f]{64}`).ReplaceAllString(raw, "sha256:xxxx")
}
