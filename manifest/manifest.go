// Package manifest handles nmacro.toml and nmacro.yaml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/chazu/nmacro/pkg/symtab"
	"gopkg.in/yaml.v3"
)

// File names searched for, in order of preference.
var FileNames = []string{"nmacro.toml", "nmacro.yaml", "nmacro.yml"}

// Manifest represents a project configuration.
type Manifest struct {
	Compiler Compiler  `toml:"compiler" yaml:"compiler"`
	Log      LogConfig `toml:"log" yaml:"log"`
	Cache    Cache     `toml:"cache" yaml:"cache"`
	LSP      LSP       `toml:"lsp" yaml:"lsp"`

	// Dir is the directory containing the configuration file (set at load time).
	Dir string `toml:"-" yaml:"-"`

	// Path is the configuration file that was read.
	Path string `toml:"-" yaml:"-"`
}

// Compiler configures compilation.
type Compiler struct {
	// Routines are global routine names known before any file is compiled.
	// Hyphenated names such as "forward-character" are only recognised
	// when declared here.
	Routines []string `toml:"routines" yaml:"routines"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity"`
	File      string `toml:"file" yaml:"file"`
}

// Cache configures the compiled-file store.
type Cache struct {
	Path     string `toml:"path" yaml:"path"`
	Disabled bool   `toml:"disabled" yaml:"disabled"`
}

// LSP configures the language server.
type LSP struct {
	Name string `toml:"name" yaml:"name"`
}

// Default returns the configuration used when no file is found.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

// Load parses the configuration file in the given directory.
func Load(dir string) (*Manifest, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, fmt.Errorf("no %s in %s", strings.Join(FileNames, " or "), dir)
}

// LoadFile parses one configuration file. The format follows the extension.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	default:
		err = toml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Path = path
	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a configuration file,
// then loads and returns it. Returns nil if none is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range FileNames {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return Load(dir)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) applyDefaults() {
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".nmacro", "cache.db")
	}
	if m.LSP.Name == "" {
		m.LSP.Name = "nmacro"
	}
}

func (m *Manifest) validate() error {
	for _, r := range m.Compiler.Routines {
		if !validRoutineName(r) {
			return fmt.Errorf("invalid routine name %q", r)
		}
	}
	if m.Log.Verbosity < -4 || m.Log.Verbosity > 2 {
		return fmt.Errorf("log verbosity %d out of range -4..2", m.Log.Verbosity)
	}
	return nil
}

// validRoutineName accepts letters, digits, '_' and inner hyphens, starting
// with a letter.
func validRoutineName(name string) bool {
	if name == "" || len(name) >= 100 {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '_'):
		case i > 0 && c == '-' && i < len(name)-1 && name[i-1] != '-':
		default:
			return false
		}
	}
	return true
}

// CachePath returns the absolute path of the compiled-file store.
func (m *Manifest) CachePath() string {
	if filepath.IsAbs(m.Cache.Path) {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}

// Globals returns a global table with the configured routines declared.
func (m *Manifest) Globals() *symtab.Table {
	t := symtab.NewTable()
	t.Declare(m.Compiler.Routines...)
	return t
}
