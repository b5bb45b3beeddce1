package models

// CellType is the kind of a notebook cell.
type CellType string

const (
	CellCode     CellType = "code"
	CellMarkdown CellType = "markdown"
	CellRaw      CellType = "raw"
	// CellHeading only appears in nbformat 3 documents read as version 3.
	CellHeading CellType = "heading"
)

type Cell struct {
	Type   CellType `json:"cell_type"`
	Source string   `json:"source"`
	// Tag is the nbgrader grade_id, nil when the cell has no grading metadata.
	Tag *string `json:"tag,omitempty"`
}

// HasTag reports whether the cell carries an nbgrader grade_id.
func (c Cell) HasTag() bool { return c.Tag != nil }

type Document struct {
	Path   string `json:"path"`
	Format int    `json:"nbformat"`
	Cells  []Cell `json:"cells"`
}
