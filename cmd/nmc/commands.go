package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chazu/nmacro/cache"
	"github.com/chazu/nmacro/compiler"
	"github.com/chazu/nmacro/compiler/hash"
	"github.com/chazu/nmacro/server"
	"github.com/chazu/nmacro/vm"
	"github.com/spf13/cobra"
)

func unitName(u compiler.Unit) string {
	if u.IsRoutine() {
		return u.Name
	}
	return "<immediate>"
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check file...",
		Short: "Report compile errors in macro files.",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if _, err := a.compileFile(cmd.Context(), path); err != nil {
					if !errors.Is(err, errFailed) {
						return err
					}
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		}),
	}
}

func (a *app) compileCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "compile [flags] file...",
		Short: "Compile macro files and print their content hashes.",
		Long: `Compile macro files and print one line per routine or block of
	immediate statements: its name, its size in cells and its content hash.
	With -o the compiled file is written in CBOR form; run and disasm accept it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			if output != "" && len(args) != 1 {
				return errors.New("-o needs exactly one input file")
			}
			for _, path := range args {
				units, err := a.compileFile(cmd.Context(), path)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				for _, u := range units {
					fmt.Fprintf(w, "%s\t%s\t%d cells\t%s\n",
						path, unitName(u), u.Program.Len(), hash.Hex(hash.HashProgram(u.Program)))
				}
				if err := w.Flush(); err != nil {
					return err
				}
				if output != "" {
					if err := writeObject(output, units); err != nil {
						return err
					}
				}
			}
			return nil
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the compiled file here")
	return cmd
}

func (a *app) disasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm file...",
		Short: "Print the compiled code of macro files.",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				units, err := a.load(cmd, path)
				if err != nil {
					return err
				}
				for _, u := range units {
					fmt.Fprint(a.out, u.Program.DisassembleWithName(unitName(u)))
				}
			}
			return nil
		}),
	}
}

// load compiles a macro file, or reads it when it is a compiled object.
func (a *app) load(cmd *cobra.Command, path string) ([]compiler.Unit, error) {
	if isObject(path) {
		return readObject(path, a.globals)
	}
	return a.compileFile(cmd.Context(), path)
}

func (a *app) runCmd() *cobra.Command {
	var (
		call     string
		maxDepth int
	)
	cmd := &cobra.Command{
		Use:   "run [flags] file... [-- args...]",
		Short: "Load macro files and run their immediate statements.",
		Long: `Load macro files in order: routines are defined and immediate
	statements run. With --call the named routine is then called with the
	arguments after "--" and its result printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			files, callArgs := args, []string(nil)
			if n := cmd.ArgsLenAtDash(); n >= 0 {
				files, callArgs = args[:n], args[n:]
			}
			if len(files) == 0 {
				return errors.New("no macro files given")
			}

			e := vm.New(vm.WithOutput(a.out), vm.WithMaxDepth(maxDepth))
			for _, path := range files {
				units, err := a.load(cmd, path)
				if err != nil {
					return err
				}
				if err := e.Load(cmd.Context(), units); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			if call == "" {
				return nil
			}

			values := make([]vm.Value, len(callArgs))
			for i, s := range callArgs {
				values[i] = vm.String(s)
			}
			result, err := e.Call(cmd.Context(), call, values...)
			if err != nil {
				return err
			}
			if result.IsSet() {
				fmt.Fprintln(a.out, display(result))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&call, "call", "", "routine to call after loading")
	cmd.Flags().IntVar(&maxDepth, "max-depth", vm.DefaultMaxDepth, "limit on nested routine calls")
	return cmd
}

// display renders a result for the terminal: strings unquoted.
func display(v vm.Value) string {
	if v.IsString() {
		s, _ := v.ToString()
		return s
	}
	return v.String()
}

func (a *app) replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Read, compile and run statements interactively.",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			return a.repl(cmd)
		}),
	}
}

// repl runs each complete chunk of input as it is entered. A chunk is
// complete when its braces balance.
func (a *app) repl(cmd *cobra.Command) error {
	e := vm.New(vm.WithOutput(a.out))
	c := compiler.New(a.globals)
	interactive := false
	if f, ok := a.in.(*os.File); ok {
		interactive = isTerminal(f)
	}
	prompt := func(s string) {
		if interactive {
			fmt.Fprint(a.out, s)
		}
	}

	scanner := bufio.NewScanner(a.in)
	var chunk strings.Builder
	depth := 0
	prompt(">> ")
	for scanner.Scan() {
		line := scanner.Text()
		if chunk.Len() == 0 && (line == "exit" || line == "quit") {
			break
		}
		chunk.WriteString(line)
		chunk.WriteByte('\n')
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth > 0 {
			prompt(".. ")
			continue
		}

		src := chunk.String()
		chunk.Reset()
		depth = 0
		a.evalChunk(cmd, e, c, src)
		prompt(">> ")
	}
	return scanner.Err()
}

func (a *app) evalChunk(cmd *cobra.Command, e *vm.Engine, c *compiler.Compiler, src string) {
	units, err := c.CompileFile(src)
	if err != nil {
		var cerr *compiler.Error
		if errors.As(err, &cerr) {
			a.diagnostic("<stdin>", src, cerr)
		} else {
			fmt.Fprintf(a.errOut, "error: %v\n", err)
		}
		return
	}
	for _, u := range units {
		if u.IsRoutine() {
			e.DefineMacro(u.Name, u.Program)
			continue
		}
		v, err := e.Run(cmd.Context(), u.Program)
		if err != nil {
			fmt.Fprintf(a.errOut, "error: %v\n", err)
			return
		}
		if v.IsSet() {
			fmt.Fprintln(a.out, display(v))
		}
	}
}

func (a *app) lspCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Run the language server on stdio.",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			ws := server.NewWorkspace(a.globals, vm.New().Routines())
			return server.NewLSP(ws, a.cfg.LSP.Name).Run()
		}),
	}
}

func (a *app) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and trim the compiled-file cache.",
	}

	storeOrErr := func() (*cache.Store, error) {
		store := a.openCache()
		if store == nil {
			return nil, errors.New("the cache is disabled")
		}
		return store, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached files, most recent first.",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			store, err := storeOrErr()
			if err != nil {
				return err
			}
			entries, err := store.Entries(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tSOURCE\tUNITS\tCOMPILED")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.Key[:12], e.SourceHash[:12], e.Units, e.CompiledAt.Format(time.RFC3339))
			}
			return w.Flush()
		}),
	})

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Remove entries older than a given age.",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			store, err := storeOrErr()
			if err != nil {
				return err
			}
			n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "removed %d entries\n", n)
			return nil
		}),
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the entries to remove")
	cmd.AddCommand(prune)

	cmd.AddCommand(&cobra.Command{
		Use:   "forget file...",
		Short: "Remove the entries of macro files compiled on their own.",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			store, err := storeOrErr()
			if err != nil {
				return err
			}
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				if err := store.Delete(cmd.Context(), cache.Key(string(data), a.globals.Names())); err != nil {
					return err
				}
			}
			return nil
		}),
	})
	return cmd
}
