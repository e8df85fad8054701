// SPDX-License-Identifier: MIT

// verify-layering enforces the package layering of the catalog daemon: the
// core model packages (catalog, features, page, citation, lint) must stay
// free of transport, persistence and lifecycle concerns so they remain usable
// as a plain library.
//
// Usage: go run ./scripts/verify-layering [pattern]
package main

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/tools/go/packages"
)

// corePackages are the model layers, keyed by import path suffix.
var corePackages = []string{
	"internal/catalog",
	"internal/features",
	"internal/page",
	"internal/citation",
	"internal/lint",
}

// forbiddenImports are the layers core packages must not reach into.
var forbiddenImports = []string{
	"internal/api",
	"internal/jobs",
	"internal/store",
	"internal/cache",
	"internal/daemon",
	"internal/download",
	"net/http",
	"database/sql",
}

func main() {
	pattern := "./internal/..."
	if len(os.Args) > 1 {
		pattern = os.Args[1]
	}

	violations, err := Analyze(pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}

	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "layering violations found:")
		for _, v := range violations {
			fmt.Fprintln(os.Stderr, "  "+v)
		}
		os.Exit(1)
	}
}

// Analyze loads the packages matching pattern and reports core packages that
// import a forbidden layer.
func Analyze(pattern string) ([]string, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps,
		Dir:  ".",
	}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}

	var violations []string
	for _, pkg := range pkgs {
		if !isCore(pkg.PkgPath) {
			continue
		}
		for importPath := range pkg.Imports {
			if forbidden(importPath) {
				violations = append(violations,
					fmt.Sprintf("%s imports %s", pkg.PkgPath, importPath))
			}
		}
	}
	return violations, nil
}

func isCore(path string) bool {
	for _, core := range corePackages {
		if strings.HasSuffix(path, core) {
			return true
		}
	}
	return false
}

func forbidden(importPath string) bool {
	for _, f := range forbiddenImports {
		if importPath == f || strings.HasSuffix(importPath, "/"+f) || strings.Contains(importPath, f+"/") {
			return true
		}
	}
	return false
}
