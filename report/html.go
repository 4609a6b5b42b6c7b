package report

import (
	"html/template"
	"io"
	"sort"
	"time"

	"go.polydawn.net/pkgrun/api"
)

var htmlTemplate = template.Must(template.New("summary").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Execution Summary - {{.ID}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 20px; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
th { background-color: #f2f2f2; }
.SUCCESS, .SKIPPED { color: green; }
.FAILURE, .TIMEOUT { color: red; }
.info { background-color: #f9f9f9; padding: 10px; margin: 10px 0; }
</style>
</head>
<body>
<h1>Execution Summary</h1>
<div class="info">
<strong>Execution ID:</strong> {{.ID}}<br>
<strong>Timestamp:</strong> {{.Timestamp}}<br>
<strong>Status:</strong> <span class="{{.Status}}">{{.Status}}</span><br>
<strong>Duration:</strong> {{.DurationMs}} ms<br>
{{- if .Message}}
<strong>Message:</strong> {{.Message}}<br>
{{- end}}
</div>
<h2>Configuration</h2>
<table>
<tr><th>Property</th><th>Value</th></tr>
<tr><td>Coordinate</td><td>{{.Config.Coordinate}}</td></tr>
<tr><td>Version</td><td>{{.Config.Version}}</td></tr>
<tr><td>Mode</td><td>{{.Mode}}</td></tr>
{{- range .Arguments}}
<tr><td>--{{.Key}}</td><td>{{.Value}}</td></tr>
{{- end}}
</table>
{{- with .Artifact}}
<h2>Resolved Artifact</h2>
<table>
<tr><th>Property</th><th>Value</th></tr>
<tr><td>Resolved Version</td><td>{{.Version}}</td></tr>
<tr><td>Digest</td><td>{{.Digest}}</td></tr>
<tr><td>Path</td><td>{{.Path}}</td></tr>
<tr><td>Dependencies</td><td>{{len .Dependencies}}</td></tr>
</table>
{{- if .Dependencies}}
<ul>
{{- range .Dependencies}}
<li>{{.}}</li>
{{- end}}
</ul>
{{- end}}
{{- end}}
{{- if .Errors}}
<h2>Errors</h2>
<ul>
{{- range .Errors}}
<li>{{.}}</li>
{{- end}}
</ul>
{{- end}}
{{- if .OutputFiles}}
<h2>Output Files</h2>
<ul>
{{- range .OutputFiles}}
<li>{{.}}</li>
{{- end}}
</ul>
{{- end}}
</body>
</html>
`))

type htmlArg struct {
	Key, Value string
}

type htmlView struct {
	ID          string
	Timestamp   string
	Status      api.Status
	DurationMs  int64
	Message     string
	Config      api.ExecutionConfig
	Mode        api.ExecutionMode
	Arguments   []htmlArg
	Artifact    *api.ResolvedArtifact
	Errors      []string
	OutputFiles []string
}

func renderHTML(w io.Writer, summary *api.RunSummary, result *api.ExecutionResult) error {
	view := htmlView{
		ID:          summary.ExecutionID,
		Timestamp:   "unknown",
		Status:      result.Status,
		DurationMs:  result.DurationMs,
		Message:     result.Message,
		Config:      summary.Config,
		Mode:        summary.Config.EffectiveMode(),
		Artifact:    summary.ResolvedArtifact,
		Errors:      result.Errors,
		OutputFiles: summary.OutputFiles,
	}
	if !summary.Timestamp.IsZero() {
		view.Timestamp = summary.Timestamp.UTC().Format(time.RFC3339)
	}
	if len(view.OutputFiles) == 0 {
		view.OutputFiles = result.OutputFiles
	}
	for k, v := range summary.Config.Arguments {
		view.Arguments = append(view.Arguments, htmlArg{k, v})
	}
	sort.Slice(view.Arguments, func(i, j int) bool { return view.Arguments[i].Key < view.Arguments[j].Key })
	return htmlTemplate.Execute(w, view)
}
