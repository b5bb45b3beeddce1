package selector

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultExtension is the suffix of the files a directory search keeps.
	DefaultExtension = ".ipynb"
	// DefaultSubmittedRoot is where submitted work is searched for.
	DefaultSubmittedRoot = "submitted"
)

var (
	ErrMissingFiles   = errors.New("named files not found")
	ErrNoFiles        = errors.New("no files to scan")
	ErrSampleTooLarge = errors.New("sample larger than file set")
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// Request describes where to find notebooks.
type Request struct {
	// Files are named explicitly and must all exist.
	Files []string
	// Dirs are searched recursively.
	Dirs []string
	// Submitted turns on the search of SubmittedRoot. Only directories whose
	// path contains one of Groups are kept; no non-empty group keeps everything.
	Submitted     bool
	Groups        []string
	SubmittedRoot string
	// Sample, when positive, reduces the result to that many random files.
	Sample    int
	Extension string
}

// Selector builds the sorted list of files to scan.
type Selector struct {
	Walker FileSystemWalker
	Rand   *rand.Rand
}

// New creates a Selector walking the local file system. rng is used for
// sampling; a nil rng falls back to the global source.
func New(rng *rand.Rand) *Selector {
	return &Selector{Walker: &DefaultFileSystemWalker{}, Rand: rng}
}

// NewWithDependencies creates a Selector with custom dependencies for testing
func NewWithDependencies(walker FileSystemWalker, rng *rand.Rand) *Selector {
	return &Selector{Walker: walker, Rand: rng}
}

// Select returns the files described by req in lexicographic order.
func (s *Selector) Select(req Request) ([]string, error) {
	ext := req.Extension
	if ext == "" {
		ext = DefaultExtension
	}

	set := make(map[string]struct{})
	if err := addNamedFiles(set, req.Files); err != nil {
		return nil, err
	}

	for _, dir := range req.Dirs {
		s.addFilesInDir(set, dir, ext, nil)
	}

	if req.Submitted {
		root := req.SubmittedRoot
		if root == "" {
			root = DefaultSubmittedRoot
		}
		s.addFilesInDir(set, root, ext, nonEmpty(req.Groups))
	}

	if len(set) == 0 {
		log.Error().Msg("No files to scan")
		return nil, ErrNoFiles
	}

	files := make([]string, 0, len(set))
	for f := range set {
		files = append(files, f)
	}
	sort.Strings(files)

	if req.Sample > 0 {
		sample, err := s.sample(files, req.Sample)
		if err != nil {
			return nil, err
		}
		files = sample
	}
	return files, nil
}

// addNamedFiles checks that every named file exists, reporting each one that does not.
func addNamedFiles(set map[string]struct{}, names []string) error {
	var missing int
	for _, fn := range names {
		fi, err := os.Stat(fn)
		if err != nil || !fi.Mode().IsRegular() {
			log.Error().Str("path", fn).Msg("No such file")
			missing++
			continue
		}
		set[filepath.Clean(fn)] = struct{}{}
	}
	if missing > 0 {
		return fmt.Errorf("%w: %d missing", ErrMissingFiles, missing)
	}
	return nil
}

// addFilesInDir walks root and adds every file ending in ext. Directories
// below root whose names start with a period are skipped. When groups is
// non-empty a file is only kept if its directory contains one of them.
func (s *Selector) addFilesInDir(set map[string]struct{}, root, ext string, groups []string) {
	root = filepath.Clean(root)
	err := s.Walker.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				if path != root && strings.HasPrefix(de.Name(), ".") {
					return godirwalk.SkipThis
				}
				return nil
			}
			if !strings.HasSuffix(path, ext) || hiddenBelow(root, path) {
				return nil
			}
			if len(groups) > 0 && !containsAny(filepath.Dir(path), groups) {
				return nil
			}
			set[filepath.Clean(path)] = struct{}{}
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("dir", root).Msg("directory not searched")
	}
}

// hiddenBelow reports whether any directory between root and path starts with a period.
func hiddenBelow(root, path string) bool {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func nonEmpty(ss []string) []string {
	var out []string
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// sample draws n distinct files uniformly without replacement and returns them sorted.
func (s *Selector) sample(files []string, n int) ([]string, error) {
	if n > len(files) {
		return nil, fmt.Errorf("%w: asked for %d of %d", ErrSampleTooLarge, n, len(files))
	}
	perm := rand.Perm
	if s.Rand != nil {
		perm = s.Rand.Perm
	}
	out := make([]string, 0, n)
	for _, i := range perm(len(files))[:n] {
		out = append(out, files[i])
	}
	sort.Strings(out)
	return out, nil
}
