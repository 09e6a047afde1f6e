package diff

import (
	"path"
	"sort"
	"strings"
	"unicode/utf8"
)

// Section is the part of a unified diff that belongs to one file.
type Section struct {
	Path    string
	Deleted bool
	Text    string
}

// Sections splits a unified diff on "diff --git" boundaries.
func Sections(diff string) []Section {
	if strings.TrimSpace(diff) == "" {
		return nil
	}
	var sections []Section
	var current strings.Builder
	flush := func() {
		s := current.String()
		current.Reset()
		if strings.TrimSpace(s) == "" {
			return
		}
		p, deleted := pathFromSection(s)
		sections = append(sections, Section{Path: p, Deleted: deleted, Text: s})
	}
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "diff --git") && current.Len() > 0 {
			flush()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()
	return sections
}

// Files returns the post-change paths touched by diff, sorted. Deleted files
// are excluded since findings cannot point into them.
func Files(diff string) []string {
	seen := make(map[string]struct{})
	var files []string
	for _, sec := range Sections(diff) {
		if sec.Deleted || sec.Path == "" {
			continue
		}
		if _, ok := seen[sec.Path]; ok {
			continue
		}
		seen[sec.Path] = struct{}{}
		files = append(files, sec.Path)
	}
	sort.Strings(files)
	return files
}

// Context returns the diff section for file, truncated to maxBytes when
// maxBytes is positive. It returns "" when the file is not in the diff.
func Context(diff, file string, maxBytes int) string {
	want := CleanPath(file)
	for _, sec := range Sections(diff) {
		if sec.Path != want {
			continue
		}
		text := sec.Text
		if maxBytes > 0 && len(text) > maxBytes {
			cut := maxBytes
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut] + "\n... (truncated)\n"
		}
		return text
	}
	return ""
}

// CleanPath normalizes a repository-relative path so it can be compared
// against the diff file list.
func CleanPath(p string) string {
	p = strings.TrimPrefix(strings.TrimSpace(p), "./")
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

// gitPath cleans a path read from a ---, +++ or diff --git line, dropping
// git's a/ or b/ side prefix.
func gitPath(p string) string {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		p = p[2:]
	}
	return CleanPath(p)
}

// FileSet is a lookup over the analyzed file list. A nil FileSet contains
// everything, which is how callers opt out of the check.
type FileSet map[string]struct{}

// NewFileSet builds a FileSet from paths. It returns nil for an empty list.
func NewFileSet(paths []string) FileSet {
	if len(paths) == 0 {
		return nil
	}
	s := make(FileSet, len(paths))
	for _, p := range paths {
		if c := CleanPath(p); c != "" {
			s[c] = struct{}{}
		}
	}
	return s
}

// Contains reports whether p (after cleaning) is part of the set.
func (s FileSet) Contains(p string) bool {
	if s == nil {
		return true
	}
	_, ok := s[CleanPath(p)]
	return ok
}

func pathFromSection(section string) (string, bool) {
	var minus string
	for _, line := range strings.Split(section, "\n") {
		switch {
		case strings.HasPrefix(line, "+++ /dev/null"):
			return gitPath(minus), true
		case strings.HasPrefix(line, "+++ "):
			return gitPath(strings.TrimPrefix(line, "+++ ")), false
		case strings.HasPrefix(line, "--- "):
			minus = strings.TrimPrefix(line, "--- ")
		case strings.HasPrefix(line, "@@"):
			// hunks started without a +++ header
			return headerPath(section), false
		}
	}
	return headerPath(section), false
}

// headerPath reads the b/ side of a "diff --git a/x b/x" header, used for
// binary or mode-only changes that carry no ---/+++ lines.
func headerPath(section string) string {
	first, _, _ := strings.Cut(section, "\n")
	if !strings.HasPrefix(first, "diff --git ") {
		return ""
	}
	idx := strings.LastIndex(first, " b/")
	if idx < 0 {
		return ""
	}
	return gitPath(first[idx+1:])
}
