// Package filesystem provides project directory traversal.
package filesystem

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIgnoreDirs are directory names skipped during traversal.
var DefaultIgnoreDirs = []string{
	"node_modules", "vendor", ".git", ".svn", ".hg",
	"dist", "build", "bin", "tmp",
	".idea", ".vscode", ".baseplate",
}

// WalkOptions configures directory traversal behavior.
type WalkOptions struct {
	IgnoreDirs     []string // Directory names to skip (default: DefaultIgnoreDirs)
	IgnorePatterns []string // Globs over root-relative slash paths (e.g., "**/*.tmp")
	IncludeHidden  bool     // Visit dot files and dot directories
	IncludeNames   []string // File names visited even when hidden (e.g., ".templates-info.json")
	DirsOnly       bool     // Visit directories instead of files
}

// Visitor receives the root-relative slash path of each visited entry.
type Visitor func(rel string, d fs.DirEntry) error

// Walk traverses root in lexical order, calling visit for every file
// (or directory, with DirsOnly) that survives the ignore rules.
func Walk(root string, opts WalkOptions, visit Visitor) error {
	ignoreDirs := opts.IgnoreDirs
	if ignoreDirs == nil {
		ignoreDirs = DefaultIgnoreDirs
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		if d.IsDir() {
			if rel == "." {
				if opts.DirsOnly {
					return visit(rel, d)
				}
				return nil
			}
			if !opts.IncludeHidden && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			for _, ignore := range ignoreDirs {
				if name == ignore {
					return filepath.SkipDir
				}
			}
			if matchAny(opts.IgnorePatterns, rel) {
				return filepath.SkipDir
			}
			if opts.DirsOnly {
				return visit(rel, d)
			}
			return nil
		}

		if opts.DirsOnly {
			return nil
		}
		if !opts.IncludeHidden && strings.HasPrefix(name, ".") && !contains(opts.IncludeNames, name) {
			return nil
		}
		if matchAny(opts.IgnorePatterns, rel) {
			return nil
		}
		return visit(rel, d)
	})
}

// Files returns the sorted root-relative paths Walk would visit.
func Files(root string, opts WalkOptions) ([]string, error) {
	var out []string
	err := Walk(root, opts, func(rel string, _ fs.DirEntry) error {
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
