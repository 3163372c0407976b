// SPDX-License-Identifier: MIT

// envcheck enforces the single-source-of-truth rule for environment
// access: only internal/config may call os.Getenv or os.LookupEnv.
// internal/log is also exempt because config imports it for load-time
// logging, so the logger has to bootstrap its own level and format.
// Test files are ignored.
//
// Usage: go run ./tools/envcheck [pattern]
package main

import (
	"fmt"
	"go/ast"
	"go/types"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/tools/go/packages"
)

var exemptDirs = []string{
	"internal/config",
	"internal/log",
}

func main() {
	pattern := "./..."
	if len(os.Args) > 1 {
		pattern = os.Args[1]
	}

	violations, err := Analyze(pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}

	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "❌ environment access outside internal/config:")
		for _, v := range violations {
			fmt.Fprintln(os.Stderr, v)
		}
		os.Exit(1)
	}
}

// Analyze loads the packages matching pattern and reports every call to
// os.Getenv or os.LookupEnv outside the exempt directories.
func Analyze(pattern string) ([]string, error) {
	cfg := &packages.Config{
		Mode: packages.NeedSyntax | packages.NeedFiles | packages.NeedTypes | packages.NeedTypesInfo | packages.NeedName,
		Dir:  ".",
	}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}

	var violations []string
	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			filename := pkg.Fset.Position(file.Pos()).Filename
			if strings.HasSuffix(filename, "_test.go") || exempt(filename) {
				continue
			}

			ast.Inspect(file, func(n ast.Node) bool {
				sel, ok := n.(*ast.SelectorExpr)
				if !ok {
					return true
				}
				if name, found := envAccess(sel, pkg.TypesInfo); found {
					pos := pkg.Fset.Position(sel.Pos())
					violations = append(violations, formatViolation(pos.Filename, pos.Line, name))
				}
				return true
			})
		}
	}
	return violations, nil
}

func exempt(filename string) bool {
	slashed := filepath.ToSlash(filename)
	for _, dir := range exemptDirs {
		if strings.Contains(slashed, "/"+dir+"/") {
			return true
		}
	}
	return false
}

// envAccess reports whether the selector resolves to os.Getenv or
// os.LookupEnv, using type information so aliased imports are caught too.
func envAccess(sel *ast.SelectorExpr, info *types.Info) (string, bool) {
	obj := info.ObjectOf(sel.Sel)
	if obj == nil {
		return "", false
	}
	pkg := obj.Pkg()
	if pkg == nil || pkg.Path() != "os" {
		return "", false
	}
	switch obj.Name() {
	case "Getenv", "LookupEnv":
		return "os." + obj.Name(), true
	}
	return "", false
}

func formatViolation(filename string, line int, name string) string {
	if rel, err := filepath.Rel(".", filename); err == nil {
		filename = rel
	}
	return fmt.Sprintf("%s:%d: %s (route it through internal/config)", filename, line, name)
}
