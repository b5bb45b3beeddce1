package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/nbscan/internal/config"
	"github.com/seanblong/nbscan/internal/filter"
	"github.com/seanblong/nbscan/internal/notebook"
	"github.com/seanblong/nbscan/internal/render"
	"github.com/seanblong/nbscan/internal/scan"
	"github.com/seanblong/nbscan/internal/selector"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const desc = `Search for and print contents of cells in Jupyter notebooks. Cells can be filtered by type
(code or markdown), by nbgrader tag ID, or by those that match a regular expression.
Specify files to scan by name or recursively search a directory to find notebooks.`

const examples = `  nbscan source/hello/hello.ipynb --code
       print the contents of all the code cells in hello.ipynb in the source folder

  nbscan source/hello/hello.ipynb source/oop/oop.ipynb --markdown --grep color:red
       print the markdown cells in hello.ipynb and oop.ipynb that have the HTML style "color:red"

  nbscan --dir source --tags
       print the nbgrader cell IDs in all cells in all notebooks in the source folder

  nbscan --dir submitted/harry --dir submitted/hermione --id hello
       print the cell with nbgrader id 'hello' in any notebooks submitted by students
       named 'harry' or 'hermione'

  nbscan --dir source --markdown --grep '^#{1,2}\s'
       print the level 1 or level 2 headers in all notebooks in the source folder

  nbscan --dir source --markdown --prompt
       as above, but enter search pattern interactively, without shell quote characters: ^#{1,2}\s

  nbscan --submitted hello --code --grep 'def hello'
       search all notebooks submitted for the hello project for code cells containing definitions
       of the hello function

  nbscan --submitted hello --id hello_doc --random 3
       print the contents of cells tagged hello_doc in the hello projects submitted by 3 random
       students`

func main() {
	setupLogging(zerolog.InfoLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		// missing files and empty file sets were reported when found
		if !errors.Is(err, selector.ErrMissingFiles) && !errors.Is(err, selector.ErrNoFiles) {
			log.Error().Err(err).Msg("nbscan failed")
		}
		stop()
		os.Exit(1)
	}
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "nbscan [FN...]",
		Short:         "Search for and print contents of cells in Jupyter notebooks",
		Long:          desc,
		Example:       examples,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// past flag parsing, errors are not usage mistakes
			cmd.SilenceUsage = true
			return run(cmd.Context(), cmd.Flags(), in, out, errOut)
		},
	}
	cmd.SetIn(in)
	cmd.SetErr(errOut)

	config.BindFlags(cmd.Flags())
	cmd.MarkFlagsMutuallyExclusive(config.PatternFlags...)
	cmd.MarkFlagsMutuallyExclusive(config.RestrictionFlags...)
	return cmd
}

func run(ctx context.Context, fs *pflag.FlagSet, in io.Reader, out, errOut io.Writer) error {
	cfg, err := config.Load("", fs)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level '%s': %w", cfg.LogLevel, err)
	}
	setupLogging(level, errOut)

	expr, err := config.ReadPattern(cfg.PatternSource(), in, errOut)
	if err != nil {
		return err
	}
	pattern, err := filter.CompilePattern(expr, cfg.MatchTimeout)
	if err != nil {
		return err
	}

	files, err := selector.New(cfg.Rand()).Select(cfg.SelectorRequest())
	if err != nil {
		return err
	}
	log.Debug().Int("files", len(files)).Int("nbformat", cfg.NBFormat).Msg("starting scan")

	svc := scan.NewService(notebook.New(), cfg.Criteria(pattern), render.New(out, pattern, cfg.Plain), cfg.NBFormat)
	return svc.Run(ctx, files)
}

// setupLogging sends operator messages to w, colored only when w is a terminal.
func setupLogging(level zerolog.Level, w io.Writer) {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:          w,
		NoColor:      noColor,
		PartsExclude: []string{zerolog.TimestampFieldName},
	}).Level(level)
}
