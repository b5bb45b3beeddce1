// Package notebook reads Jupyter notebook files into models.Document values.
//
// Both nbformat 3 (worksheets) and nbformat 4 (flat cell list) files are
// understood. The only part of a cell's metadata that is kept is the nbgrader
// grade_id, which becomes the cell's tag.
package notebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/seanblong/nbscan/pkg/models"
)

// DefaultVersion is the nbformat version documents are read as unless told otherwise.
const DefaultVersion = 4

var (
	// ErrNotJSON is returned for files whose contents are not a JSON document.
	ErrNotJSON = errors.New("notebook does not appear to be JSON")
	// ErrBadEncoding is returned for files that are not valid UTF-8.
	ErrBadEncoding = errors.New("notebook is not valid UTF-8")
	// ErrNotNotebook is returned for JSON documents with no cell list.
	ErrNotNotebook = errors.New("document is not a notebook")
	// ErrUnsupportedVersion is returned when asked for an nbformat version other than 3 or 4.
	ErrUnsupportedVersion = errors.New("unsupported nbformat version")
)

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// Loader turns notebook files into documents.
type Loader struct {
	Reader FileReader
}

// New creates a Loader that reads from the local file system.
func New() *Loader {
	return &Loader{Reader: &DefaultFileReader{}}
}

// NewWithReader creates a Loader with a custom file reader for testing
func NewWithReader(r FileReader) *Loader {
	return &Loader{Reader: r}
}

// SupportedVersion reports whether documents can be read as nbformat version v.
func SupportedVersion(v int) bool {
	return v == 3 || v == 4
}

// IsRecoverable reports whether err means the file was not a readable
// document. Such files are reported and skipped; any other error aborts the scan.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrNotJSON) || errors.Is(err, ErrBadEncoding)
}

// Load reads the notebook at path as nbformat version.
func (l *Loader) Load(path string, version int) (models.Document, error) {
	if !SupportedVersion(version) {
		return models.Document{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	b, err := l.Reader.ReadFile(path)
	if err != nil {
		return models.Document{}, err
	}
	doc, err := Parse(b, version)
	if err != nil {
		return models.Document{}, err
	}
	doc.Path = path
	return doc, nil
}

// Parse decodes notebook bytes as nbformat version.
func Parse(b []byte, version int) (models.Document, error) {
	if !utf8.Valid(b) {
		return models.Document{}, ErrBadEncoding
	}
	if !json.Valid(b) {
		return models.Document{}, ErrNotJSON
	}

	var raw rawNotebook
	if err := json.Unmarshal(b, &raw); err != nil {
		// valid JSON that is not an object, or a cell list of the wrong shape
		return models.Document{}, fmt.Errorf("%w: %v", ErrNotNotebook, err)
	}

	major := raw.NBFormat
	switch {
	case raw.Cells != nil:
		if major == 0 {
			major = 4
		}
	case raw.Worksheets != nil:
		if major == 0 {
			major = 3
		}
	default:
		return models.Document{}, ErrNotNotebook
	}

	doc := models.Document{Format: major}
	if raw.Cells != nil {
		for _, rc := range raw.Cells {
			doc.Cells = append(doc.Cells, rc.cell(version))
		}
		return doc, nil
	}
	for _, ws := range raw.Worksheets {
		for _, rc := range ws.Cells {
			doc.Cells = append(doc.Cells, rc.cell(version))
		}
	}
	return doc, nil
}

type rawNotebook struct {
	NBFormat   int            `json:"nbformat"`
	Cells      []rawCell      `json:"cells"`
	Worksheets []rawWorksheet `json:"worksheets"`
}

type rawWorksheet struct {
	Cells []rawCell `json:"cells"`
}

type rawCell struct {
	CellType string       `json:"cell_type"`
	Source   multiline    `json:"source"`
	Input    multiline    `json:"input"` // v3 code cells
	Level    int          `json:"level"` // v3 heading cells
	Metadata cellMetadata `json:"metadata"`
}

type cellMetadata struct {
	Nbgrader json.RawMessage `json:"nbgrader"`
}

func (rc rawCell) cell(version int) models.Cell {
	c := models.Cell{
		Type:   models.CellType(rc.CellType),
		Source: string(rc.Source),
		Tag:    rc.Metadata.gradeID(),
	}
	if c.Type == models.CellCode && rc.Input != "" && rc.Source == "" {
		c.Source = string(rc.Input)
	}
	if c.Type == models.CellHeading && version >= 4 {
		level := rc.Level
		if level < 1 {
			level = 1
		}
		c.Type = models.CellMarkdown
		c.Source = strings.Repeat("#", level) + " " + c.Source
	}
	return c
}

// gradeID extracts metadata.nbgrader.grade_id. Cells without nbgrader
// metadata, or with a non-string grade_id, have no tag.
func (m cellMetadata) gradeID() *string {
	if len(m.Nbgrader) == 0 {
		return nil
	}
	var ng struct {
		GradeID *string `json:"grade_id"`
	}
	if err := json.Unmarshal(m.Nbgrader, &ng); err != nil {
		return nil
	}
	return ng.GradeID
}

// multiline is a notebook text field, stored either as one string or as a
// list of lines that are concatenated.
type multiline string

func (m *multiline) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*m = multiline(s)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(b, &lines); err != nil {
		return fmt.Errorf("text field must be a string or list of strings")
	}
	*m = multiline(strings.Join(lines, ""))
	return nil
}
