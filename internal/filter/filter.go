// Package filter selects the cells of a notebook that match a search.
package filter

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/nbscan/pkg/models"
)

// DefaultMatchTimeout bounds a single pattern match.
const DefaultMatchTimeout = 2 * time.Second

// Output selects what a matching cell contributes.
type Output int

const (
	// OutputContent emits the source text of matching cells.
	OutputContent Output = iota
	// OutputTags emits the nbgrader tag of matching cells.
	OutputTags
)

// Restriction limits a search to cells of one type or with one tag.
// The two kinds cannot be combined; a nil Restriction admits every cell.
type Restriction interface {
	admits(c models.Cell) bool
}

// TypeRestriction admits only cells of the given type.
type TypeRestriction struct {
	Type models.CellType
}

func (r TypeRestriction) admits(c models.Cell) bool { return c.Type == r.Type }

// TagRestriction admits only cells whose tag equals Tag exactly.
type TagRestriction struct {
	Tag string
}

func (r TagRestriction) admits(c models.Cell) bool { return c.Tag != nil && *c.Tag == r.Tag }

// Criteria is the resolved search configuration.
type Criteria struct {
	Restriction Restriction
	Pattern     *regexp2.Regexp
	Output      Output
}

// CompilePattern compiles expr as a case-insensitive search pattern.
// An empty expr means no pattern and yields nil.
func CompilePattern(expr string, timeout time.Duration) (*regexp2.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	re, err := regexp2.Compile(expr, regexp2.IgnoreCase)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", expr, err)
	}
	if timeout <= 0 {
		timeout = DefaultMatchTimeout
	}
	re.MatchTimeout = timeout
	return re, nil
}

// Match reports whether the cell passes every active check. Checks run in
// order restriction, pattern and stop at the first failure.
func (c Criteria) Match(cell models.Cell) bool {
	if c.Restriction != nil && !c.Restriction.admits(cell) {
		return false
	}
	if c.Pattern != nil {
		ok, err := c.Pattern.MatchString(cell.Source)
		if err != nil {
			log.Warn().Err(err).Str("pattern", c.Pattern.String()).Msg("pattern match abandoned")
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// Apply returns the matches of doc in cell order. In tags mode only cells
// with a tag contribute, whether or not a tag restriction is set.
func (c Criteria) Apply(doc models.Document) []string {
	var matches []string
	for _, cell := range doc.Cells {
		if !c.Match(cell) {
			continue
		}
		if c.Output == OutputTags {
			if cell.HasTag() {
				matches = append(matches, *cell.Tag)
			}
			continue
		}
		matches = append(matches, cell.Source)
	}
	return matches
}
