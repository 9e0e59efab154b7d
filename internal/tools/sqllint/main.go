// sqllint verifies the SQL statement convention: every string constant
// containing SQL starts with a "--sql <uuid>" marker line, and no two
// statements share a marker. SQLRunner logs the marker instead of the
// statement text, so a missing marker fails at runtime and a duplicated
// one makes the audit trail ambiguous.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	sqlKeywordPattern = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with)\b`)
	markerPattern     = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// statement is one marker-tagged SQL constant found in the tree.
type statement struct {
	file   string
	line   int
	name   string
	marker string
}

type problem struct {
	file    string
	line    int
	name    string
	message string
}

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"."}
	}

	var statements []statement
	var problems []problem
	for _, target := range targets {
		found, bad, err := lintTarget(target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
			os.Exit(1)
		}
		statements = append(statements, found...)
		problems = append(problems, bad...)
	}
	problems = append(problems, duplicateMarkers(statements)...)

	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "%s:%d: %s (%s)\n", p.file, p.line, p.message, p.name)
		}
		os.Exit(1)
	}
}

func lintTarget(target string) ([]statement, []problem, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		if filepath.Ext(target) != ".go" {
			return nil, nil, nil
		}
		return lintFile(target)
	}

	var statements []statement
	var problems []problem
	walkErr := filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") ||
				name == "vendor" || name == "testdata" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		found, bad, err := lintFile(path)
		if err != nil {
			return err
		}
		statements = append(statements, found...)
		problems = append(problems, bad...)
		return nil
	})
	if walkErr != nil {
		return nil, nil, walkErr
	}
	return statements, problems, nil
}

func lintFile(path string) ([]statement, []problem, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, nil, err
	}

	var statements []statement
	var problems []problem
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for _, value := range vs.Values {
			bl, ok := value.(*ast.BasicLit)
			if !ok || bl.Kind != token.STRING {
				continue
			}
			raw, err := unquote(bl.Value)
			if err != nil {
				continue
			}
			if !sqlKeywordPattern.MatchString(raw) {
				continue
			}
			pos := fset.Position(bl.Pos())
			markerLine := firstLine(raw)
			if !markerPattern.MatchString(markerLine) {
				problems = append(problems, problem{
					file:    path,
					line:    pos.Line,
					name:    joinNames(vs.Names),
					message: "missing or invalid --sql <uuid> marker",
				})
				continue
			}
			statements = append(statements, statement{
				file:   path,
				line:   pos.Line,
				name:   joinNames(vs.Names),
				marker: strings.TrimPrefix(markerLine, "--sql "),
			})
		}
		return true
	})
	return statements, problems, nil
}

// duplicateMarkers flags every statement reusing a marker already
// claimed by an earlier statement. Reports are ordered by marker so
// output is stable across runs.
func duplicateMarkers(statements []statement) []problem {
	byMarker := make(map[string][]statement)
	for _, s := range statements {
		byMarker[s.marker] = append(byMarker[s.marker], s)
	}
	markers := make([]string, 0, len(byMarker))
	for marker := range byMarker {
		markers = append(markers, marker)
	}
	sort.Strings(markers)

	var problems []problem
	for _, marker := range markers {
		group := byMarker[marker]
		if len(group) < 2 {
			continue
		}
		first := group[0]
		for _, s := range group[1:] {
			problems = append(problems, problem{
				file:    s.file,
				line:    s.line,
				name:    s.name,
				message: fmt.Sprintf("marker %.8s already used by %s at %s:%d", marker, first.name, first.file, first.line),
			})
		}
	}
	return problems
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if len(v) == 0 {
		return v, nil
	}
	if v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}

func joinNames(idents []*ast.Ident) string {
	parts := make([]string, 0, len(idents))
	for _, ident := range idents {
		if ident == nil {
			continue
		}
		parts = append(parts, ident.Name)
	}
	return strings.Join(parts, ",")
}
