package report

import (
	"embed"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

func reportTemplate() string {
	data, err := templateFS.ReadFile("templates/report.html.tmpl")
	if err != nil {
		// The template ships inside the binary; a miss is a build defect.
		panic("report: embedded template missing: " + err.Error())
	}
	return string(data)
}
