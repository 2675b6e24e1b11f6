// Package preprocess holds the content rewrites applied to source files before
// an instrumentation or coverage step. The rewrite itself is pluggable; this
// package only provides the shapes and a few stock pipelines.
package preprocess

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/melih-ucgun/forgeguard/internal/config"
)

// Pipeline rewrites the full content of one file.
type Pipeline interface {
	Apply(path string, content []byte) ([]byte, error)
}

// Func adapts a plain function to Pipeline.
type Func func(path string, content []byte) ([]byte, error)

func (f Func) Apply(path string, content []byte) ([]byte, error) { return f(path, content) }

// LineTransform rewrites a single line. The line excludes its terminator.
type LineTransform func(path, line string) (string, error)

// Identity leaves content untouched.
var Identity Pipeline = Func(func(_ string, content []byte) ([]byte, error) {
	return content, nil
})

// EachLine runs transform over every line and keeps the original terminators,
// including a missing newline at end of file.
func EachLine(transform LineTransform) Pipeline {
	return Func(func(path string, content []byte) ([]byte, error) {
		var out bytes.Buffer
		out.Grow(len(content))

		rest := content
		lineNo := 0
		for len(rest) > 0 {
			lineNo++
			var line, eol []byte
			if i := bytes.IndexByte(rest, '\n'); i >= 0 {
				line, eol, rest = rest[:i], rest[i:i+1], rest[i+1:]
			} else {
				line, rest = rest, nil
			}
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line, eol = line[:n-1], append([]byte{'\r'}, eol...)
			}

			rewritten, err := transform(path, string(line))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			out.WriteString(rewritten)
			out.Write(eol)
		}
		return out.Bytes(), nil
	})
}

// Chain applies pipelines in order.
func Chain(pipelines ...Pipeline) Pipeline {
	return Func(func(path string, content []byte) ([]byte, error) {
		var err error
		for _, p := range pipelines {
			if content, err = p.Apply(path, content); err != nil {
				return nil, err
			}
		}
		return content, nil
	})
}

// FromRules compiles project file rules into a per-line regexp rewrite.
// No rules yields Identity.
func FromRules(rules []config.Rule) (Pipeline, error) {
	if len(rules) == 0 {
		return Identity, nil
	}

	type compiled struct {
		re      *regexp.Regexp
		replace string
	}
	list := make([]compiled, 0, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Match)
		if err != nil {
			return nil, fmt.Errorf("preprocess rule %d: invalid match %q: %w", i, r.Match, err)
		}
		list = append(list, compiled{re: re, replace: r.Replace})
	}

	return EachLine(func(_ string, line string) (string, error) {
		for _, c := range list {
			line = c.re.ReplaceAllString(line, c.replace)
		}
		return line, nil
	}), nil
}
