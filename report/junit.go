package report

import (
	"encoding/xml"
	"fmt"
	"time"

	"go.polydawn.net/pkgrun/api"
)

type junitSuite struct {
	XMLName   xml.Name    `xml:"testsuite"`
	Name      string      `xml:"name,attr"`
	Tests     int         `xml:"tests,attr"`
	Failures  int         `xml:"failures,attr"`
	Errors    int         `xml:"errors,attr"`
	Skipped   int         `xml:"skipped,attr"`
	Time      string      `xml:"time,attr"`
	Timestamp string      `xml:"timestamp,attr,omitempty"`
	Cases     []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

/*
	One suite named for the package, holding one "execute" case.

	FAILURE and TIMEOUT both count as failures (CI tools have no notion
	of a timeout); the failure body lists each error on its own line.
*/
func renderJUnit(summary *api.RunSummary, result *api.ExecutionResult) ([]byte, error) {
	name := suiteName(summary)
	secs := fmt.Sprintf("%.3f", float64(result.DurationMs)/1000)
	tc := junitCase{
		Name:      "execute",
		Classname: name,
		Time:      secs,
	}
	suite := junitSuite{
		Name:  name,
		Tests: 1,
		Time:  secs,
	}
	if !summary.Timestamp.IsZero() {
		suite.Timestamp = summary.Timestamp.UTC().Format(time.RFC3339)
	}
	switch result.Status {
	case api.StatusFailure, api.StatusTimeout:
		suite.Failures = 1
		body := ""
		for _, e := range result.Errors {
			body += e + "\n"
		}
		tc.Failure = &junitFailure{
			Message: result.Message,
			Type:    string(result.Status),
			Body:    body,
		}
	case api.StatusSkipped:
		suite.Skipped = 1
		tc.Skipped = &junitSkipped{Message: result.Message}
	}
	suite.Cases = []junitCase{tc}

	out, err := xml.MarshalIndent(suite, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}
