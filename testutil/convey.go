package testutil

import (
	"bytes"
	"io"
	"os/exec"

	"github.com/inconshreveable/log15"
	"github.com/smartystreets/goconvey/convey"
)

func TestLogger(c convey.C) log15.Logger {
	log := log15.New()
	log.SetHandler(log15.StreamHandler(Writer{c}, log15.TerminalFormat()))
	return log
}

var _ io.Writer = Writer{}

/*
	Wraps a goconvey context into an `io.Writer` so that you can
	shovel logs at it.
*/
type Writer struct {
	Convey convey.C
}

func (lw Writer) Write(msg []byte) (int, error) {
	return lw.Convey.Print(string(msg))
}

/*
	Turn `[s1,s2,s3]` into `" (s1, s2, s3)"` and `[]` into `""`.

	Each GoConvey suite has to have a unique name; shared suites
	(like the executor compliance checks) get invoked more than once
	with different args, so they append this to their titles.
*/
func AdditionalDescription(addtnlDesc ...string) string {
	n := len(addtnlDesc)
	if n == 0 {
		return ""
	}
	var buf bytes.Buffer
	buf.WriteString(" (")
	for i := 0; i < n-1; i++ {
		buf.WriteString(addtnlDesc[i])
		buf.WriteString(", ")
	}
	buf.WriteString(addtnlDesc[n-1])
	buf.WriteRune(')')
	return buf.String()
}

/*
	A requirement decides whether a test body can run on this host.
	It returns an empty string if so, or the reason it can't.
*/
type Requirement func() string

/*
	Decorates a goconvey test body so it's skipped (with a printed reason)
	unless every requirement holds.
*/
func Requires(args ...interface{}) func(c convey.C) {
	reqs := args[:len(args)-1]
	body := args[len(args)-1]
	return func(c convey.C) {
		for _, r := range reqs {
			if reason := r.(Requirement)(); reason != "" {
				c.Print("skipped: " + reason + "\n")
				convey.SkipConvey("requirement not met: "+reason, func() {})
				return
			}
		}
		switch body := body.(type) {
		case func():
			body()
		case func(c convey.C):
			body(c)
		default:
			panic("Requires needs a func() or func(convey.C) as its last argument")
		}
	}
}

// RequiresBinary holds if the named program is on the PATH.
func RequiresBinary(name string) Requirement {
	return func() string {
		if _, err := exec.LookPath(name); err != nil {
			return name + " not found on PATH"
		}
		return ""
	}
}
