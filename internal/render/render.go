// Package render prints the matches found in a notebook.
package render

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/nbscan/internal/filter"
)

const separator = "---------"

// Marker wraps a piece of text for display.
type Marker func(string) string

// NoMark returns text unchanged.
func NoMark(s string) string { return s }

// Highlight returns text with every match of pattern wrapped by mark.
// A nil pattern, or a match that times out, leaves text unchanged.
func Highlight(text string, pattern *regexp2.Regexp, mark Marker) string {
	if pattern == nil || mark == nil {
		return text
	}
	out, err := pattern.ReplaceFunc(text, func(m regexp2.Match) string {
		return mark(m.String())
	}, -1, -1)
	if err != nil {
		log.Debug().Err(err).Msg("highlight abandoned")
		return text
	}
	return out
}

// Formatter writes per-file results.
type Formatter struct {
	Out     io.Writer
	Pattern *regexp2.Regexp
	// Structure marks file headers, underlines and separators.
	Structure Marker
	// Match marks pattern matches inside cell sources.
	Match Marker
	Plain bool
}

// New creates a Formatter. Unless plain is set, headers are red and pattern
// matches blue, whether or not out is a terminal.
func New(out io.Writer, pattern *regexp2.Regexp, plain bool) *Formatter {
	f := &Formatter{Out: out, Pattern: pattern, Plain: plain, Structure: NoMark, Match: NoMark}
	if !plain {
		f.Structure = forced(color.FgRed)
		f.Match = forced(color.FgBlue)
	}
	return f
}

func forced(attr color.Attribute) Marker {
	c := color.New(attr)
	c.EnableColor()
	return func(s string) string { return c.Sprint(s) }
}

// Print writes the matches for one file. Nothing is written when there are none.
func (f *Formatter) Print(path string, matches []string, output filter.Output) error {
	if len(matches) == 0 {
		return nil
	}
	var b strings.Builder
	if output == filter.OutputTags {
		f.writeTags(&b, path, matches)
	} else {
		f.writeContent(&b, path, matches)
	}
	_, err := io.WriteString(f.Out, b.String())
	if err != nil {
		return fmt.Errorf("write results for %s: %w", path, err)
	}
	return nil
}

func (f *Formatter) writeTags(b *strings.Builder, path string, tags []string) {
	b.WriteString(path + "\n")
	for _, t := range tags {
		b.WriteString("   " + t + "\n")
	}
	b.WriteString("\n")
}

func (f *Formatter) writeContent(b *strings.Builder, path string, sources []string) {
	if f.Plain {
		for _, s := range sources {
			b.WriteString(s + "\n\n")
		}
		return
	}
	b.WriteString(f.Structure(path) + "\n")
	b.WriteString(f.Structure(strings.Repeat("=", utf8.RuneCountInString(path))) + "\n")
	for _, s := range sources {
		b.WriteString(Highlight(s, f.Pattern, f.Match) + "\n")
		b.WriteString(f.Structure(separator) + "\n")
	}
	b.WriteString("\n")
}
