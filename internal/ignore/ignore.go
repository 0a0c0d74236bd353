// Package ignore reads .policyignore files: gitignore-style exclusions for
// documents under a data directory.
//
// Supported syntax: blank lines and # comments are skipped, a trailing /
// matches only directory contents, a leading / or an inner / anchors the
// pattern to the data directory, and ! re-includes a previously excluded
// path. The last matching line wins.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileName is read from the root of a data directory.
const FileName = ".policyignore"

// ErrInvalidRule is returned for a line that is not a valid glob.
var ErrInvalidRule = errors.New("invalid ignore rule")

type rule struct {
	globs  []string
	negate bool
}

// Matcher reports whether a data-directory-relative path is excluded.
// The zero value excludes nothing.
type Matcher struct {
	rules []rule
}

// Load reads dir/.policyignore. A missing file yields an empty Matcher.
func Load(dir string) (*Matcher, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Matcher{}, nil
		}
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads rules from r.
func Parse(r io.Reader) (*Matcher, error) {
	m := &Matcher{}
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		rl, ok, err := compile(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", FileName, n, err)
		}
		if ok {
			m.rules = append(m.rules, rl)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

func compile(line string) (rule, bool, error) {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false, nil
	}

	var rl rule
	if strings.HasPrefix(line, "!") {
		rl.negate = true
		line = line[1:]
	}
	dirOnly := strings.HasSuffix(line, "/")
	line = strings.TrimSuffix(line, "/")
	anchored := strings.Contains(line, "/")
	line = strings.TrimPrefix(line, "/")
	if line == "" {
		return rule{}, false, nil
	}

	base := line
	if !anchored {
		base = "**/" + line
	}
	rl.globs = []string{base + "/**"}
	if !dirOnly {
		rl.globs = append(rl.globs, base)
	}
	for _, g := range rl.globs {
		if !doublestar.ValidatePattern(g) {
			return rule{}, false, fmt.Errorf("%w: %q", ErrInvalidRule, line)
		}
	}
	return rl, true, nil
}

// Match reports whether rel, a slash-separated path relative to the data
// directory, is excluded.
func (m *Matcher) Match(rel string) bool {
	if m == nil {
		return false
	}
	excluded := false
	for _, rl := range m.rules {
		for _, g := range rl.globs {
			if ok, _ := doublestar.Match(g, rel); ok {
				excluded = !rl.negate
				break
			}
		}
	}
	return excluded
}

// Len returns the number of rules.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}
