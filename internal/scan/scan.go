package scan

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/nbscan/internal/filter"
	"github.com/seanblong/nbscan/internal/notebook"
	"github.com/seanblong/nbscan/pkg/models"
)

// DocumentLoader loads one notebook.
type DocumentLoader interface {
	Load(path string, version int) (models.Document, error)
}

// ResultPrinter prints the matches of one notebook.
type ResultPrinter interface {
	Print(path string, matches []string, output filter.Output) error
}

type Service struct {
	Loader   DocumentLoader
	Criteria filter.Criteria
	Printer  ResultPrinter
	Version  int
}

// NewService creates a scan service with the provided loader, criteria and printer
func NewService(loader DocumentLoader, criteria filter.Criteria, printer ResultPrinter, version int) *Service {
	return &Service{
		Loader:   loader,
		Criteria: criteria,
		Printer:  printer,
		Version:  version,
	}
}

// Run scans files in order. Files that are not readable notebooks are
// reported and skipped; any other failure stops the scan.
func (s *Service) Run(ctx context.Context, files []string) error {
	for _, fn := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := s.Loader.Load(fn, s.Version)
		if err != nil {
			if notebook.IsRecoverable(err) {
				log.Warn().Err(err).Str("path", fn).Msg("skipping file")
				continue
			}
			return fmt.Errorf("load %s: %w", fn, err)
		}

		matches := s.Criteria.Apply(doc)
		log.Debug().Str("path", fn).Int("cells", len(doc.Cells)).Int("matches", len(matches)).Msg("scanned notebook")
		if err := s.Printer.Print(fn, matches, s.Criteria.Output); err != nil {
			return err
		}
	}
	return nil
}
