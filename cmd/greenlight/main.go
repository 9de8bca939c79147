// greenlight is the regression pipeline CLI: run a workflow end to end,
// execute the suite on its own, rebuild or publish the report, and
// inspect run history.
//
// Usage:
//
//	greenlight run [--workflow=<path>] [--event=push --branch=main]
//	greenlight validate [--workflow=<path>]
//	greenlight test [--env-file=<path>] [--marker=regression]
//	greenlight report [--run=<id>] [-o <dir>]
//	greenlight publish --repo=<url> [--branch=gh-pages]
//	greenlight status [--run=<id>]
//	greenlight serve
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
