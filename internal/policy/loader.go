package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/relicta-tech/deke/internal/analysis"
	dekeerrors "github.com/relicta-tech/deke/internal/errors"
	"github.com/relicta-tech/deke/internal/fileutil"
)

// Format is a policy set file format.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatDeke Format = "deke"
)

// DefaultMaxFileSize bounds a single policy file.
const DefaultMaxFileSize int64 = 1 << 20

// FormatOf returns the format implied by path's extension.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".toml":
		return FormatTOML, true
	case ".deke":
		return FormatDeke, true
	}
	return "", false
}

// LoaderOptions configures policy loading behavior.
type LoaderOptions struct {
	// IgnoreErrors continues loading even if some files fail to parse.
	IgnoreErrors bool
	// Recursive searches subdirectories for policy files.
	Recursive bool
	// MaxFileSize bounds each file; zero means DefaultMaxFileSize.
	MaxFileSize int64
}

// LoadResult contains the outcome of loading policy sets.
type LoadResult struct {
	// Sets contains successfully loaded sets.
	Sets []*Set
	// Errors contains errors for files that failed to load.
	Errors []LoadError
}

// LoadError represents an error loading a specific policy file.
type LoadError struct {
	File string
	Err  error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e LoadError) Unwrap() error {
	return e.Err
}

// Loader loads policy sets from the filesystem.
type Loader struct {
	opts LoaderOptions
}

// NewLoader creates a new policy loader with the given options.
func NewLoader(opts LoaderOptions) *Loader {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	return &Loader{opts: opts}
}

// LoadDir loads every policy file in dir. A missing directory yields an
// empty result.
func (l *Loader) LoadDir(dir string) (*LoadResult, error) {
	const op = "policy.LoadDir"

	result := &LoadResult{
		Sets:   make([]*Set, 0),
		Errors: make([]LoadError, 0),
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return nil, dekeerrors.IOWrap(err, op, "stat "+dir)
	}
	if !info.IsDir() {
		return nil, dekeerrors.IO(op, dir+" is not a directory")
	}

	files, err := l.findFiles(dir)
	if err != nil {
		return nil, dekeerrors.IOWrap(err, op, "list "+dir)
	}

	for _, file := range files {
		set, err := l.LoadFile(file)
		if err != nil {
			result.Errors = append(result.Errors, LoadError{File: file, Err: err})
			if !l.opts.IgnoreErrors {
				return result, err
			}
			continue
		}
		result.Sets = append(result.Sets, set)
	}

	return result, nil
}

func (l *Loader) findFiles(dir string) ([]string, error) {
	var files []string
	if l.opts.Recursive {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if _, ok := FormatOf(path); ok && !d.IsDir() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if _, ok := FormatOf(entry.Name()); ok && !entry.IsDir() {
				files = append(files, filepath.Join(dir, entry.Name()))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// LoadFile loads and validates a single policy file.
func (l *Loader) LoadFile(path string) (*Set, error) {
	const op = "policy.LoadFile"

	format, ok := FormatOf(path)
	if !ok {
		return nil, dekeerrors.Validation(op, fmt.Sprintf("%s: unsupported policy file extension", path))
	}
	data, err := fileutil.ReadFileLimited(path, l.opts.MaxFileSize)
	if err != nil {
		return nil, dekeerrors.IOWrap(err, op, "read "+path)
	}

	base := filepath.Base(path)
	set, err := Decode(data, format, strings.TrimSuffix(base, filepath.Ext(base)))
	if err != nil {
		return nil, dekeerrors.Wrap(err, dekeerrors.GetKind(err), op, path)
	}
	set.Source = path
	return set, nil
}

// Decode parses and validates a policy set. name is used when the document
// does not name the set, and as the analysis name of a .deke program.
func Decode(data []byte, format Format, name string) (*Set, error) {
	const op = "policy.Decode"

	set := &Set{}
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(set); err != nil && !errors.Is(err, io.EOF) {
			return nil, dekeerrors.ValidationWrap(err, op, "decode yaml")
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(set); err != nil {
			return nil, dekeerrors.ValidationWrap(err, op, "decode toml")
		}
	case FormatDeke:
		set.Analyses = []analysis.Analysis{{
			Name:        name,
			Policy:      strings.TrimSpace(string(data)),
			Explanation: name,
		}}
	default:
		return nil, dekeerrors.Validation(op, fmt.Sprintf("unknown format %q", format))
	}

	if set.Name == "" {
		set.Name = name
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// Encode renders set as YAML or TOML.
func Encode(set *Set, format Format) ([]byte, error) {
	const op = "policy.Encode"

	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(set); err != nil {
			return nil, dekeerrors.Wrap(err, dekeerrors.KindInternal, op, "encode yaml")
		}
		if err := enc.Close(); err != nil {
			return nil, dekeerrors.Wrap(err, dekeerrors.KindInternal, op, "encode yaml")
		}
		return buf.Bytes(), nil
	case FormatTOML:
		data, err := toml.Marshal(set)
		if err != nil {
			return nil, dekeerrors.Wrap(err, dekeerrors.KindInternal, op, "encode toml")
		}
		return data, nil
	}
	return nil, dekeerrors.Validation(op, fmt.Sprintf("cannot encode format %q", format))
}

// ValidateDir validates all policy files in a directory.
func ValidateDir(dir string) ([]LoadError, error) {
	loader := NewLoader(LoaderOptions{IgnoreErrors: true, Recursive: true})
	result, err := loader.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return result.Errors, nil
}

// ValidateFile validates a single policy file.
func ValidateFile(path string) error {
	_, err := NewLoader(LoaderOptions{}).LoadFile(path)
	return err
}

// DefaultPolicyPaths returns the list of paths to search for policy sets.
func DefaultPolicyPaths() []string {
	return []string{
		".deke/policies",
		"policies",
	}
}
