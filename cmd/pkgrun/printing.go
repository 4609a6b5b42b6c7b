package main

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"go.polydawn.net/pkgrun/api"
)

type printer interface {
	printRun(*api.RunSummary)
	printBatch(api.BatchSummary)
}

var (
	_ printer = ansi{}
	_ printer = jsonPrinter{}
)

type ansi struct{ stdout, stderr io.Writer }

var (
	summaryFlare = []byte("\033[0;33m∴⟩ \033[0m")
	okFlare      = []byte("\033[0;32m✔⟩ \033[0m")
	failFlare    = []byte("\033[0;31m✘⟩ \033[0m")
	colorReset   = []byte("\033[0m")
)

func (p ansi) printRun(rs *api.RunSummary) {
	msg := bytes.Buffer{}
	msg.Write(summaryFlare)
	msg.WriteString(fmt.Sprintf("\033[1;30m%s\033[0m %s\n", rs.ExecutionID, rs.Summary))
	for _, k := range sortedKeys(rs.Config.Arguments) {
		msg.WriteString(fmt.Sprintf("   arg: --%s %s\n", k, rs.Config.Arguments[k]))
	}
	if ra := rs.ResolvedArtifact; ra != nil {
		msg.WriteString(fmt.Sprintf("   artifact: %s:%s \033[1;30m%s\033[0m\n", ra.Coordinate, ra.Version, ra.Digest))
	}
	if res := rs.ExecutionResult; res != nil {
		if res.Status.Succeeded() {
			msg.Write(okFlare)
		} else {
			msg.Write(failFlare)
		}
		msg.WriteString(string(res.Status))
		if res.ExitCode != nil {
			msg.WriteString(fmt.Sprintf(" (exit %d)", *res.ExitCode))
		}
		msg.WriteString(fmt.Sprintf(": %s\n", res.Message))
		for _, e := range res.Errors {
			msg.WriteString(fmt.Sprintf("   \033[0;31merror:\033[0m %s\n", e))
		}
	}
	for _, f := range rs.OutputFiles {
		msg.WriteString(fmt.Sprintf("   output: %s\n", f))
	}
	msg.Write(colorReset)
	msg.WriteTo(p.stdout)
}

func (p ansi) printBatch(bs api.BatchSummary) {
	msg := bytes.Buffer{}
	for i, res := range bs.Results {
		if res.Success {
			msg.Write(okFlare)
		} else {
			msg.Write(failFlare)
		}
		msg.WriteString(fmt.Sprintf("[%d] %s@%s \033[1;30m(%d ms)\033[0m: %s\n", i, res.Job.Coordinate, res.Job.Version, res.DurationMs, res.Message))
		if res.Invocation != "" {
			msg.WriteString(fmt.Sprintf("    \033[1;30m%s\033[0m\n", res.Invocation))
		}
	}
	msg.Write(summaryFlare)
	msg.WriteString(fmt.Sprintf("batch %s: %d jobs, %d successful, %d failed, in %d ms\n",
		bs.BatchID, bs.Total, bs.Successful, bs.Failed, bs.DurationMs))
	msg.Write(colorReset)
	msg.WriteTo(p.stdout)
}

type jsonPrinter struct{ stdout io.Writer }

func (p jsonPrinter) printRun(rs *api.RunSummary) {
	if err := api.EncodeJSON(p.stdout, rs); err != nil {
		panic(err)
	}
	p.stdout.Write([]byte{'\n'})
}

func (p jsonPrinter) printBatch(bs api.BatchSummary) {
	if err := api.EncodeJSON(p.stdout, bs); err != nil {
		panic(err)
	}
	p.stdout.Write([]byte{'\n'})
}

// sortedKeys is for stable printing of argument maps.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
