package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/kelseyhightower/envconfig"
	"github.com/seanblong/nbscan/internal/filter"
	"github.com/seanblong/nbscan/internal/notebook"
	"github.com/seanblong/nbscan/internal/selector"
	"github.com/seanblong/nbscan/pkg/models"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	NBFormat      int           `yaml:"nbformat"`
	Plain         bool          `yaml:"plain"`
	LogLevel      string        `yaml:"logLevel" split_words:"true"`
	SubmittedRoot string        `yaml:"submittedRoot" split_words:"true"`
	Extension     string        `yaml:"extension"`
	Seed          uint64        `yaml:"seed"`
	MatchTimeout  time.Duration `yaml:"matchTimeout" split_words:"true"`

	// What to search for is only taken from the command line.
	Files           []string `yaml:"-" ignored:"true"`
	Dirs            []string `yaml:"-" ignored:"true"`
	Submitted       []string `yaml:"-" ignored:"true"`
	SubmittedSearch bool     `yaml:"-" ignored:"true"`
	Random          int      `yaml:"-" ignored:"true"`
	Grep            string   `yaml:"-" ignored:"true"`
	Prompt          bool     `yaml:"-" ignored:"true"`
	ID              string   `yaml:"-" ignored:"true"`
	Code            bool     `yaml:"-" ignored:"true"`
	Markdown        bool     `yaml:"-" ignored:"true"`
	Tags            bool     `yaml:"-" ignored:"true"`
}

const envPrefix = "NBSCAN"

var (
	ErrConflict      = errors.New("conflicting options")
	ErrInvalidOption = errors.New("invalid option")
)

// Flag groups that cannot be combined.
var (
	PatternFlags     = []string{"grep", "prompt"}
	RestrictionFlags = []string{"id", "code", "markdown"}
)

// BindFlags registers the nbscan flags on fs with their default values.
func BindFlags(fs *pflag.FlagSet) {
	var c Specification
	setDefaults(&c)

	fs.String("config", "", "Path to config file")

	fs.StringArray("dir", nil, "find all notebooks in or below this directory (repeatable)")
	fs.StringArray("submitted", nil, "search subdirectories of project or student name `X` under the submitted root (repeatable; --submitted= takes all)")
	fs.Int("random", 0, "scan `N` randomly chosen notebooks")
	fs.Uint64("seed", c.Seed, "random seed for --random (0 picks one)")

	fs.String("grep", "", "look for cells containing pattern `P`")
	fs.Bool("prompt", false, "prompt for grep pattern")

	fs.String("id", "", "search nbgrader cells with this ID `X`")
	fs.Bool("code", false, "scan code cells only")
	fs.Bool("markdown", false, "scan markdown cells only")

	fs.Bool("tags", false, "print cell IDs instead of contents")
	fs.Int("nbformat", c.NBFormat, "Jupyter notebook format `N`")
	fs.Bool("plain", c.Plain, "plain text output (no headers, colors)")

	fs.String("submitted-root", c.SubmittedRoot, "Directory holding submitted work")
	fs.String("extension", c.Extension, "Notebook file extension")
	fs.Duration("match-timeout", c.MatchTimeout, "Time limit for a single pattern match")
	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
}

// Load => defaults < YAML < env < flags. fs must have been bound with
// BindFlags and parsed; its positional arguments are the files to scan.
// configPath may be ""; if so the --config flag is used, then auto-discovery.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)

	// config file
	path := configPath
	if path == "" {
		path, _ = fs.GetString("config")
	}
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"./nbscan.yaml",
				"./.nbscan.yaml",
				"config/nbscan.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	applyChangedFlags(fs, &cfg)
	cfg.Files = fs.Args()

	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if err := cfg.Validate(); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot be combined or used.
func (s Specification) Validate() error {
	if !notebook.SupportedVersion(s.NBFormat) {
		return fmt.Errorf("%w: --nbformat %d (supported: 3, 4)", ErrInvalidOption, s.NBFormat)
	}
	if s.Random < 0 {
		return fmt.Errorf("%w: --random must not be negative", ErrInvalidOption)
	}
	if s.Grep != "" && s.Prompt {
		return fmt.Errorf("%w: --grep and --prompt", ErrConflict)
	}
	n := 0
	for _, set := range []bool{s.ID != "", s.Code, s.Markdown} {
		if set {
			n++
		}
	}
	if n > 1 {
		return fmt.Errorf("%w: only one of --id, --code, --markdown", ErrConflict)
	}
	return nil
}

// PatternSource says where the search pattern comes from.
type PatternSource interface {
	patternSource()
}

// NoPattern means every cell passes the pattern check.
type NoPattern struct{}

// LiteralPattern is a pattern given on the command line.
type LiteralPattern struct {
	Expr string
}

// PromptPattern is a pattern read from the operator before scanning.
type PromptPattern struct{}

func (NoPattern) patternSource()      {}
func (LiteralPattern) patternSource() {}
func (PromptPattern) patternSource()  {}

func (s Specification) PatternSource() PatternSource {
	switch {
	case s.Prompt:
		return PromptPattern{}
	case s.Grep != "":
		return LiteralPattern{Expr: s.Grep}
	default:
		return NoPattern{}
	}
}

// ReadPattern resolves src to a pattern expression. A prompt writes
// "pattern: " to out and reads one line from in.
func ReadPattern(src PatternSource, in io.Reader, out io.Writer) (string, error) {
	switch p := src.(type) {
	case LiteralPattern:
		return p.Expr, nil
	case PromptPattern:
		fmt.Fprint(out, "pattern: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", fmt.Errorf("read pattern: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	default:
		return "", nil
	}
}

// Restriction returns the cell type or tag restriction, nil for none.
func (s Specification) Restriction() filter.Restriction {
	switch {
	case s.Code:
		return filter.TypeRestriction{Type: models.CellCode}
	case s.Markdown:
		return filter.TypeRestriction{Type: models.CellMarkdown}
	case s.ID != "":
		return filter.TagRestriction{Tag: s.ID}
	default:
		return nil
	}
}

// Criteria builds the search criteria around an already compiled pattern.
func (s Specification) Criteria(pattern *regexp2.Regexp) filter.Criteria {
	c := filter.Criteria{Restriction: s.Restriction(), Pattern: pattern, Output: filter.OutputContent}
	if s.Tags {
		c.Output = filter.OutputTags
	}
	return c
}

// SelectorRequest describes the files to scan.
func (s Specification) SelectorRequest() selector.Request {
	return selector.Request{
		Files:         s.Files,
		Dirs:          s.Dirs,
		Submitted:     s.SubmittedSearch,
		Groups:        s.Submitted,
		SubmittedRoot: s.SubmittedRoot,
		Sample:        s.Random,
		Extension:     s.Extension,
	}
}

// Rand returns the sampling source: seeded when Seed is set, nil otherwise.
func (s Specification) Rand() *rand.Rand {
	if s.Seed == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(s.Seed, s.Seed))
}

// ---------- helpers ----------

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}
	setArray := func(name string, dst *[]string) bool {
		if fs.Changed(name) {
			v, _ := fs.GetStringArray(name)
			*dst = v
			return true
		}
		return false
	}

	// (We ignore --config here; it's for discovery.)
	setArray("dir", &c.Dirs)
	c.SubmittedSearch = setArray("submitted", &c.Submitted)
	setInt("random", &c.Random)
	if fs.Changed("seed") {
		c.Seed, _ = fs.GetUint64("seed")
	}

	setStr("grep", &c.Grep)
	setBool("prompt", &c.Prompt)

	setStr("id", &c.ID)
	setBool("code", &c.Code)
	setBool("markdown", &c.Markdown)

	setBool("tags", &c.Tags)
	setInt("nbformat", &c.NBFormat)
	setBool("plain", &c.Plain)

	setStr("submitted-root", &c.SubmittedRoot)
	setStr("extension", &c.Extension)
	if fs.Changed("match-timeout") {
		c.MatchTimeout, _ = fs.GetDuration("match-timeout")
	}
	setStr("log-level", &c.LogLevel)
}

func setDefaults(c *Specification) {
	c.NBFormat = notebook.DefaultVersion
	c.Plain = false
	c.LogLevel = "info"
	c.SubmittedRoot = selector.DefaultSubmittedRoot
	c.Extension = selector.DefaultExtension
	c.Seed = 0
	c.MatchTimeout = filter.DefaultMatchTimeout
}
