// SPDX-License-Identifier: MIT

// validate is a CLI tool to lint catalog pages and dataset manifests.
//
// Usage:
//
//	validate -f page.md
//	validate -d manifests/
//
// Exit codes:
//   - 0: No findings
//   - 1: Findings reported, or the input could not be parsed
//   - 2: Usage error
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/irfnrdh/tensorflow-datasets/internal/builder"
	"github.com/irfnrdh/tensorflow-datasets/internal/lint"
	"github.com/irfnrdh/tensorflow-datasets/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		pageFile    string
		manifestDir string
		showVersion bool
		disabled    stringList
	)
	fs.StringVar(&pageFile, "file", "", "path to a rendered catalog page (markdown)")
	fs.StringVar(&pageFile, "f", "", "path to a rendered catalog page (shorthand)")
	fs.StringVar(&manifestDir, "dir", "", "path to a dataset manifest directory")
	fs.StringVar(&manifestDir, "d", "", "path to a dataset manifest directory (shorthand)")
	fs.Var(&disabled, "disable", "lint rule to disable (repeatable)")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if showVersion {
		fmt.Fprintln(stdout, version.Version)
		return 0
	}

	if (pageFile == "") == (manifestDir == "") {
		fmt.Fprintln(stderr, "Error: exactly one of --file or --dir is required")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Usage:")
		fmt.Fprintln(stderr, "  validate -f page.md")
		fmt.Fprintln(stderr, "  validate -d manifests/")
		return 2
	}

	linter, err := lint.New(lint.Options{Disabled: disabled})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if pageFile != "" {
		return lintPage(linter, pageFile, stdout, stderr)
	}
	return lintManifestDir(linter, manifestDir, stdout, stderr)
}

func lintPage(linter *lint.Linter, path string, stdout, stderr io.Writer) int {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied CLI path
	if err != nil {
		fmt.Fprintf(stderr, "Error reading %s:\n  %v\n", path, err)
		return 1
	}

	report, err := linter.LintPage(data)
	if err != nil {
		fmt.Fprintf(stderr, "Parse error in %s:\n  %v\n", path, err)
		return 1
	}
	return printReport(path, report, stdout)
}

func lintManifestDir(linter *lint.Linter, dir string, stdout, stderr io.Writer) int {
	manifests, err := builder.LoadManifestDir(dir)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading manifests from %s:\n  %v\n", dir, err)
		return 1
	}
	if len(manifests) == 0 {
		fmt.Fprintf(stderr, "Error: no manifests found in %s\n", dir)
		return 1
	}

	exit := 0
	for _, m := range manifests {
		info, err := m.DatasetInfo()
		if err != nil {
			fmt.Fprintf(stderr, "Invalid manifest %q:\n  %v\n", m.Name, err)
			exit = 1
			continue
		}
		if code := printReport(info.Name, linter.LintInfo(info), stdout); code != 0 {
			exit = code
		}
	}
	return exit
}

func printReport(subject string, report *lint.Report, stdout io.Writer) int {
	for _, f := range report.Findings {
		target := f.Subject
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(stdout, "%s: %s: %s: %s: %s\n", subject, f.Severity, f.Rule, target, f.Message)
	}
	if len(report.Findings) > 0 {
		fmt.Fprintf(stdout, "✗ %s: %d error(s), %d warning(s)\n", subject, report.Errors(), report.Warnings())
		return 1
	}
	fmt.Fprintf(stdout, "✓ %s is valid\n", subject)
	return 0
}

// stringList collects repeated flag values.
type stringList []string

func (s *stringList) String() string { return fmt.Sprint(*s) }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
