package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/nmacro/compiler"
	"github.com/chazu/nmacro/compiler/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const incFile = `define inc {
    return $1 + 1
}
print("x=", inc(1), "\n")
`

type env struct {
	t    *testing.T
	dir  string
	base []string
}

func newEnv(t *testing.T) *env {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "nmacro.toml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
[compiler]
routines = ["forward-character"]

[cache]
path = "cache.db"
`), 0644))
	return &env{t: t, dir: dir, base: []string{"--config=" + cfg, "--color=never"}}
}

func (e *env) file(name, content string) string {
	e.t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(e.t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func (e *env) run(stdin string, args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(withFlags(args, e.base))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// withFlags inserts flags before any "--" so they are not taken as
// arguments.
func withFlags(args, flags []string) []string {
	out := make([]string, 0, len(args)+len(flags))
	for i, a := range args {
		if a == "--" {
			out = append(out, flags...)
			return append(out, args[i:]...)
		}
		out = append(out, a)
	}
	return append(out, flags...)
}

func TestCheck(t *testing.T) {
	e := newEnv(t)
	good := e.file("good.nm", incFile)
	bad := e.file("bad.nm", "x = 1\ny = = 2\n")

	_, _, err := e.run("", "check", good)
	require.NoError(t, err)

	_, stderr, err := e.run("", "check", good, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files failed")
	assert.Contains(t, stderr, bad+":2:6: error: syntax error, unexpected '='")
	assert.Contains(t, stderr, "    y = = 2\n         ^\n")
	assert.NotContains(t, stderr, "\x1b[")
}

func TestCheckUsesConfiguredRoutines(t *testing.T) {
	e := newEnv(t)
	path := e.file("hyphen.nm", "forward-character()\n")

	_, _, err := e.run("", "check", path)
	assert.NoError(t, err)

	empty := e.file("empty.toml", "")
	var out, errOut bytes.Buffer
	cmd := newRootCmd(strings.NewReader(""), &out, &errOut)
	cmd.SetArgs([]string{"check", "--config", empty, "--no-cache", path})
	assert.Error(t, cmd.Execute())
}

func TestCompilePrintsHashes(t *testing.T) {
	e := newEnv(t)
	path := e.file("inc.nm", incFile)

	units, err := compiler.New(nil).CompileFile(incFile)
	require.NoError(t, err)

	stdout, _, err := e.run("", "compile", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "inc")
	assert.Contains(t, lines[0], hash.Hex(hash.HashProgram(units[0].Program)))
	assert.Contains(t, lines[1], "<immediate>")
	assert.Contains(t, lines[1], hash.Hex(hash.HashProgram(units[1].Program)))

	// The second compile is served by the cache and prints the same.
	again, _, err := e.run("", "compile", path)
	require.NoError(t, err)
	assert.Equal(t, stdout, again)

	list, _, err := e.run("", "cache", "list")
	require.NoError(t, err)
	assert.Contains(t, list, "KEY")
	assert.Equal(t, 2, strings.Count(list, "\n"))
}

func TestObjectFile(t *testing.T) {
	e := newEnv(t)
	path := e.file("inc.nm", incFile)
	obj := filepath.Join(e.dir, "inc.nmo")

	_, _, err := e.run("", "compile", "-o", obj, path)
	require.NoError(t, err)

	fromSource, _, err := e.run("", "disasm", path)
	require.NoError(t, err)
	fromObject, _, err := e.run("", "disasm", obj)
	require.NoError(t, err)
	assert.Equal(t, fromSource, fromObject)
	assert.Contains(t, fromSource, "; === inc ===")

	stdout, _, err := e.run("", "run", obj)
	require.NoError(t, err)
	assert.Equal(t, "x=2\n", stdout)
}

func TestRun(t *testing.T) {
	e := newEnv(t)
	path := e.file("inc.nm", incFile)

	stdout, _, err := e.run("", "run", path)
	require.NoError(t, err)
	assert.Equal(t, "x=2\n", stdout)

	stdout, _, err = e.run("", "run", "--call", "inc", path, "--", "41")
	require.NoError(t, err)
	assert.Equal(t, "x=2\n42\n", stdout)

	_, _, err = e.run("", "run", "--call", "nosuch", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined routine: nosuch")
}

func TestRunErrors(t *testing.T) {
	e := newEnv(t)
	path := e.file("div.nm", "x = 1 / 0\n")

	_, _, err := e.run("", "run", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")

	_, _, err = e.run("", "run", filepath.Join(e.dir, "missing.nm"))
	assert.Error(t, err)
}

func TestRepl(t *testing.T) {
	e := newEnv(t)
	input := `$x = 2
return $x * 3
define f {
    return 7
}
return f()
y = = 2
print("done\n")
exit
print("never\n")
`
	stdout, stderr, err := e.run(input, "repl")
	require.NoError(t, err)
	assert.Equal(t, "6\n7\ndone\n", stdout)
	assert.Contains(t, stderr, "<stdin>:1:6: error:")
}

func TestCacheKeysOnEarlierFiles(t *testing.T) {
	e := newEnv(t)
	a := e.file("a.nm", "define total {\n    return 1\n}\n")
	b := e.file("b.nm", "total = 5\n")

	_, _, err := e.run("", "check", b)
	require.NoError(t, err)

	// total is a routine once a.nm is loaded, so b.nm gets its own entry.
	_, _, err = e.run("", "run", a, b)
	require.NoError(t, err)
	list, _, err := e.run("", "cache", "list")
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(list, "\n"))

	_, _, err = e.run("", "run", a, b)
	require.NoError(t, err)
	list, _, err = e.run("", "cache", "list")
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(list, "\n"))
}

func TestCachePruneAndForget(t *testing.T) {
	e := newEnv(t)
	a := e.file("a.nm", "x = 1\n")
	b := e.file("b.nm", "x = 2\n")

	_, _, err := e.run("", "check", a, b)
	require.NoError(t, err)

	_, _, err = e.run("", "cache", "forget", a)
	require.NoError(t, err)
	list, _, err := e.run("", "cache", "list")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(list, "\n"))

	stdout, _, err := e.run("", "cache", "prune", "--older-than=-1h")
	require.NoError(t, err)
	assert.Equal(t, "removed 1 entries\n", stdout)

	_, _, err = e.run("", "cache", "list", "--no-cache")
	assert.Error(t, err)
}
