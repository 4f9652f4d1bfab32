package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/nmacro/cache"
	"github.com/chazu/nmacro/compiler"
	"github.com/chazu/nmacro/manifest"
	"github.com/chazu/nmacro/pkg/symtab"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("nmacro.nmc")

// errFailed reports that diagnostics were already printed.
var errFailed = errors.New("compilation failed")

// app holds what every subcommand shares: streams, configuration and the
// compiled-file cache.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// flags
	verbosity  int
	configPath string
	cachePath  string
	noCache    bool
	color      string

	cfg     *manifest.Manifest
	globals *symtab.Table
	store   *cache.Store
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "nmc",
		Short: "A compiler for NEdit-style macro files.",
		Long: `A compiler (and small toolbox) for NEdit-style macro files.
	Configuration is read from nmacro.toml or nmacro.yaml in the current
	directory or one of its parents.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().CountVarP(&a.verbosity, "verbose", "v", "increase logging verbosity")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "configuration file (default: search upwards)")
	root.PersistentFlags().StringVar(&a.cachePath, "cache", "", "compiled-file cache database")
	root.PersistentFlags().BoolVar(&a.noCache, "no-cache", false, "always compile from source")
	root.PersistentFlags().StringVar(&a.color, "color", "auto", "colour diagnostics: auto, always or never")

	root.AddCommand(
		a.checkCmd(),
		a.compileCmd(),
		a.disasmCmd(),
		a.runCmd(),
		a.replCmd(),
		a.lspCmd(),
		a.cacheCmd(),
	)
	return root
}

func (a *app) setup() error {
	var err error
	switch {
	case a.configPath != "":
		a.cfg, err = manifest.LoadFile(a.configPath)
	default:
		a.cfg, err = manifest.FindAndLoad(".")
	}
	if err != nil {
		return err
	}
	if a.cfg == nil {
		dir, err := filepath.Abs(".")
		if err != nil {
			return err
		}
		a.cfg = manifest.Default(dir)
	}

	var logFile *string
	if a.cfg.Log.File != "" {
		logFile = &a.cfg.Log.File
	}
	commonlog.Configure(a.cfg.Log.Verbosity+a.verbosity, logFile)
	if a.cfg.Path != "" {
		log.Debugf("configuration from %s", a.cfg.Path)
	}

	a.globals = a.cfg.Globals()
	return nil
}

// runE wraps a command body so the cache is closed however it ends.
func (a *app) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if cerr := a.close(); err == nil {
				err = cerr
			}
		}()
		return fn(cmd, args)
	}
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// openCache opens the compiled-file cache unless it is disabled. A cache
// that cannot be opened is skipped with a warning.
func (a *app) openCache() *cache.Store {
	if a.store != nil || a.noCache || a.cfg.Cache.Disabled {
		return a.store
	}
	path := a.cachePath
	if path == "" {
		path = a.cfg.CachePath()
	}
	store, err := cache.Open(path)
	if err != nil {
		log.Warningf("cache disabled: %s", err)
		a.noCache = true
		return nil
	}
	a.store = store
	return store
}

// compileFile reads and compiles a macro file, through the cache when one
// is available. Compile errors are printed and reported as errFailed.
func (a *app) compileFile(ctx context.Context, path string) ([]compiler.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	src := string(data)
	c := compiler.New(a.globals)

	var units []compiler.Unit
	if store := a.openCache(); store != nil {
		var hit bool
		units, hit, err = store.CompileFile(ctx, c, src)
		if err == nil {
			log.Debugf("%s: cache hit %v", path, hit)
		}
	} else {
		units, err = c.CompileFile(src)
	}

	var cerr *compiler.Error
	if errors.As(err, &cerr) {
		a.diagnostic(path, src, cerr)
		return nil, errFailed
	}
	return units, err
}

// diagnostic prints a compile error with the offending line and a caret.
func (a *app) diagnostic(path, src string, err *compiler.Error) {
	line, col := err.Position(src)
	label := "error"
	if a.useColor() {
		label = "\x1b[1;31merror\x1b[0m"
	}
	fmt.Fprintf(a.errOut, "%s:%d:%d: %s: %s\n", path, line, col, label, err.Msg)

	lines := strings.Split(src, "\n")
	if line-1 < len(lines) {
		text := lines[line-1]
		fmt.Fprintf(a.errOut, "    %s\n", text)
		fmt.Fprintf(a.errOut, "    %s^\n", strings.Repeat(" ", min(col-1, len(text))))
	}
}

func (a *app) useColor() bool {
	switch a.color {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := a.errOut.(*os.File)
	return ok && isTerminal(f)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
