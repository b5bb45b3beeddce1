package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
	"github.com/seanblong/nbscan/internal/filter"
	"github.com/seanblong/nbscan/internal/notebook"
	"github.com/seanblong/nbscan/internal/render"
	"github.com/seanblong/nbscan/pkg/models"
)

func init() {
	// Suppress logs during testing
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// MockLoader implements DocumentLoader for testing
type MockLoader struct {
	Docs   map[string]models.Document
	Errors map[string]error
	Loaded []string
}

func (m *MockLoader) Load(path string, version int) (models.Document, error) {
	m.Loaded = append(m.Loaded, path)
	if err, ok := m.Errors[path]; ok {
		return models.Document{}, err
	}
	if doc, ok := m.Docs[path]; ok {
		doc.Path = path
		return doc, nil
	}
	return models.Document{}, os.ErrNotExist
}

type printed struct {
	Path    string
	Matches []string
}

// MockPrinter implements ResultPrinter for testing
type MockPrinter struct {
	Calls     []printed
	PrintFunc func(path string, matches []string, output filter.Output) error
}

func (m *MockPrinter) Print(path string, matches []string, output filter.Output) error {
	m.Calls = append(m.Calls, printed{path, matches})
	if m.PrintFunc != nil {
		return m.PrintFunc(path, matches, output)
	}
	return nil
}

func tag(s string) *string { return &s }

func TestServiceRun(t *testing.T) {
	loader := &MockLoader{
		Docs: map[string]models.Document{
			"a.ipynb": {Cells: []models.Cell{
				{Type: models.CellCode, Tag: tag("q1"), Source: "def f(): pass"},
				{Type: models.CellMarkdown, Source: "# Q1"},
			}},
			"c.ipynb": {Cells: []models.Cell{
				{Type: models.CellMarkdown, Source: "no code here"},
			}},
		},
		Errors: map[string]error{
			"b.ipynb": fmt.Errorf("wrapped: %w", notebook.ErrNotJSON),
		},
	}
	printer := &MockPrinter{}
	svc := NewService(loader, filter.Criteria{Restriction: filter.TypeRestriction{Type: models.CellCode}}, printer, 4)

	if err := svc.Run(context.Background(), []string{"a.ipynb", "b.ipynb", "c.ipynb"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !reflect.DeepEqual(loader.Loaded, []string{"a.ipynb", "b.ipynb", "c.ipynb"}) {
		t.Errorf("Expected every file loaded in order, got %v", loader.Loaded)
	}
	expected := []printed{
		{"a.ipynb", []string{"def f(): pass"}},
		{"c.ipynb", nil},
	}
	if !reflect.DeepEqual(printer.Calls, expected) {
		t.Errorf("Expected %v, got %v", expected, printer.Calls)
	}
}

func TestServiceRunStopsOnUnrecoverableError(t *testing.T) {
	loader := &MockLoader{Errors: map[string]error{"a.ipynb": notebook.ErrNotNotebook}}
	printer := &MockPrinter{}
	svc := NewService(loader, filter.Criteria{}, printer, 4)

	err := svc.Run(context.Background(), []string{"a.ipynb", "b.ipynb"})
	if !errors.Is(err, notebook.ErrNotNotebook) {
		t.Fatalf("Expected ErrNotNotebook, got %v", err)
	}
	if len(loader.Loaded) != 1 {
		t.Errorf("Expected scan to stop after first file, loaded %v", loader.Loaded)
	}
}

func TestServiceRunPrinterError(t *testing.T) {
	loader := &MockLoader{Docs: map[string]models.Document{
		"a.ipynb": {Cells: []models.Cell{{Type: models.CellCode, Source: "x"}}},
	}}
	boom := errors.New("broken pipe")
	printer := &MockPrinter{PrintFunc: func(string, []string, filter.Output) error { return boom }}
	svc := NewService(loader, filter.Criteria{}, printer, 4)

	if err := svc.Run(context.Background(), []string{"a.ipynb"}); !errors.Is(err, boom) {
		t.Errorf("Expected printer error, got %v", err)
	}
}

func TestServiceRunCancelled(t *testing.T) {
	loader := &MockLoader{}
	svc := NewService(loader, filter.Criteria{}, &MockPrinter{}, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx, []string{"a.ipynb"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(loader.Loaded) != 0 {
		t.Errorf("Expected no files loaded, got %v", loader.Loaded)
	}
}

func TestServiceRunTagsEndToEnd(t *testing.T) {
	loader := &MockLoader{Docs: map[string]models.Document{
		"hw/a.ipynb": {Cells: []models.Cell{
			{Type: models.CellCode, Tag: tag("q1"), Source: "def f(): pass"},
			{Type: models.CellMarkdown, Source: "# Q1"},
		}},
		"hw/b.ipynb": {Cells: []models.Cell{
			{Type: models.CellMarkdown, Source: "# untagged"},
		}},
	}}
	var out bytes.Buffer
	svc := NewService(loader, filter.Criteria{Output: filter.OutputTags}, render.New(&out, nil, false), 4)

	if err := svc.Run(context.Background(), []string{"hw/a.ipynb", "hw/b.ipynb"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	expected := "hw/a.ipynb\n   q1\n\n"
	if out.String() != expected {
		t.Errorf("Expected %q, got %q", expected, out.String())
	}
}
