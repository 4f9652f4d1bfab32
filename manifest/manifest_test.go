package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/nmacro/pkg/symtab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "nmacro.toml", `
[compiler]
routines = ["forward-character", "beep"]

[log]
verbosity = 2
file = "nmc.log"

[cache]
path = "/tmp/macros.db"

[lsp]
name = "macros"
`)

	m, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"forward-character", "beep"}, m.Compiler.Routines)
	assert.Equal(t, 2, m.Log.Verbosity)
	assert.Equal(t, "nmc.log", m.Log.File)
	assert.Equal(t, "/tmp/macros.db", m.CachePath())
	assert.Equal(t, "macros", m.LSP.Name)
	assert.Equal(t, filepath.Join(dir, "nmacro.toml"), m.Path)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "nmacro.yaml", `
compiler:
  routines:
    - forward-character
log:
  verbosity: -1
cache:
  disabled: true
`)

	m, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"forward-character"}, m.Compiler.Routines)
	assert.Equal(t, -1, m.Log.Verbosity)
	assert.True(t, m.Cache.Disabled)
	assert.Equal(t, "nmacro", m.LSP.Name)
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "nmacro.toml", "")

	m, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, m.Compiler.Routines)
	assert.Equal(t, 0, m.Log.Verbosity)
	assert.Equal(t, "nmacro", m.LSP.Name)
	assert.Equal(t, filepath.Join(m.Dir, ".nmacro", "cache.db"), m.CachePath())
}

func TestLoadPrefersTOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "nmacro.toml", "[lsp]\nname = \"toml\"\n")
	writeFile(t, dir, "nmacro.yaml", "lsp:\n  name: yaml\n")

	m, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "toml", m.LSP.Name)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		msg     string
	}{
		{"bad toml", "nmacro.toml", "[compiler\n", "parse error"},
		{"bad yaml", "nmacro.yaml", "compiler: [\n", "parse error"},
		{"bad routine", "nmacro.toml", "[compiler]\nroutines = [\"-x\"]\n", `invalid routine name "-x"`},
		{"trailing hyphen", "nmacro.toml", "[compiler]\nroutines = [\"x-\"]\n", `invalid routine name "x-"`},
		{"verbosity", "nmacro.toml", "[log]\nverbosity = 9\n", "out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, tt.file, tt.content)
			_, err := Load(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "nmacro.toml", "[lsp]\nname = \"found\"\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	m, err := FindAndLoad(nested)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "found", m.LSP.Name)

	abs, err := filepath.Abs(root)
	require.NoError(t, err)
	assert.Equal(t, abs, m.Dir)
}

func TestFindAndLoadNotFound(t *testing.T) {
	// t.TempDir is not under any directory holding a configuration file
	// unless the machine has one at /tmp or /; skip in that case.
	dir := t.TempDir()
	for d := filepath.Dir(dir); ; d = filepath.Dir(d) {
		for _, name := range FileNames {
			if _, err := os.Stat(filepath.Join(d, name)); err == nil {
				t.Skipf("found %s above the temp dir", filepath.Join(d, name))
			}
		}
		if d == filepath.Dir(d) {
			break
		}
	}

	m, err := FindAndLoad(dir)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestGlobalsDeclaresRoutines(t *testing.T) {
	m := Default(t.TempDir())
	m.Compiler.Routines = []string{"forward-character"}

	g := m.Globals()
	sym := g.Lookup("forward-character")
	require.NotNil(t, sym)
	assert.Equal(t, symtab.Global, sym.Class)
}

func TestValidRoutineName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"beep", true},
		{"forward-character", true},
		{"a_1", true},
		{"", false},
		{"1a", false},
		{"a--b", false},
		{"$x", false},
	}
	for _, tt := range tests {
		if got := validRoutineName(tt.name); got != tt.want {
			t.Errorf("validRoutineName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
