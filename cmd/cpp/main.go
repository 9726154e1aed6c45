package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fwessels/cpp"
	"github.com/fwessels/cpp/internal/diag"
	"github.com/fwessels/cpp/internal/macro"
	"github.com/fwessels/cpp/internal/snapshot"
	"github.com/fwessels/cpp/internal/token"
)

// errFailed means the diagnostics have already been printed.
var errFailed = errors.New("preprocessing failed")

type config struct {
	includeDirs []string
	systemDirs  []string
	defines     []string
	undefines   []string

	trigraphs    bool
	traditional  bool
	keepComments bool
	pedantic     bool
	warnUnused   bool
	noDollars    bool
	cplusplus    bool

	redefinition string
	inputCharset string
	maxDepth     int

	output     string
	tokens     bool
	dumpMacros bool
	saveMacros string
	loadMacros string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	var c config

	cmd := &cobra.Command{
		Use:           "cpp [flags] <file>",
		Short:         "Preprocess a C source file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, &c, args[0])
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&c.includeDirs, "include-dir", "I", nil, "add a directory to the include search path")
	f.StringArrayVar(&c.systemDirs, "isystem", nil, "add a system header directory, searched after -I")
	f.StringArrayVarP(&c.defines, "define", "D", nil, "define NAME, NAME=VALUE or NAME(args)=VALUE")
	f.StringArrayVarP(&c.undefines, "undefine", "U", nil, "undefine NAME after the -D definitions")
	f.BoolVar(&c.trigraphs, "trigraphs", false, "replace trigraphs")
	f.BoolVar(&c.traditional, "traditional", false, "expand macros textually, as pre-standard preprocessors did")
	f.BoolVarP(&c.keepComments, "keep-comments", "C", false, "keep comments in the output")
	f.BoolVar(&c.pedantic, "pedantic", false, "warn about non-portable constructs")
	f.BoolVar(&c.warnUnused, "warn-unused-macros", false, "warn about macros that are never used")
	f.BoolVar(&c.noDollars, "no-dollars", false, "do not accept '$' in identifiers")
	f.BoolVar(&c.cplusplus, "c++", false, "lex C++ operators")
	f.StringVar(&c.redefinition, "redefinition", "warn", "what a conflicting #define does: warn, replace, error or fatal")
	f.StringVar(&c.inputCharset, "input-charset", "", "encoding of the source files")
	f.IntVar(&c.maxDepth, "max-depth", 0, "maximum #include nesting (0 means the default)")
	f.StringVarP(&c.output, "output", "o", "", "write the output to a file instead of stdout")
	f.BoolVar(&c.tokens, "tokens", false, "print one token per line with its kind and position")
	f.BoolVar(&c.dumpMacros, "dump-macros", false, "print the #define of every user macro at the end")
	f.StringVar(&c.saveMacros, "save-macros", "", "save the macro table to a snapshot file at the end")
	f.StringVar(&c.loadMacros, "load-macros", "", "define the macros of a snapshot file before reading the input")
	f.BoolVarP(&c.verbose, "verbose", "v", false, "log debug information to stderr")

	return cmd
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose || os.Getenv("CPP_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func (c *config) options(stderr io.Writer) (cpp.Options, error) {
	policy, err := macro.ParsePolicy(c.redefinition)
	if err != nil {
		return cpp.Options{}, err
	}
	opts := cpp.DefaultOptions()
	opts.Trigraphs = c.trigraphs
	opts.Traditional = c.traditional
	opts.KeepComments = c.keepComments
	opts.Pedantic = c.pedantic
	opts.WarnUnusedMacros = c.warnUnused
	opts.Dollars = !c.noDollars
	opts.CPlusPlus = c.cplusplus
	opts.Redefinition = policy
	opts.InputCharset = c.inputCharset
	if c.maxDepth > 0 {
		opts.MaxDepth = c.maxDepth
	}
	opts.Defines = c.defines
	opts.Undefines = c.undefines
	opts.Opener = &cpp.DirOpener{IncludeDirs: c.includeDirs, SystemDirs: c.systemDirs}
	opts.Logger = newLogger(stderr, c.verbose)
	opts.Sink = diag.Writer(stderr)
	return opts, nil
}

func readInput(cmd *cobra.Command, name string) (string, []byte, error) {
	if name == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", nil, fmt.Errorf("read stdin: %w", err)
		}
		return "<stdin>", data, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", nil, fmt.Errorf("read input: %w", err)
	}
	return name, data, nil
}

func run(cmd *cobra.Command, c *config, input string) error {
	stderr := cmd.ErrOrStderr()
	opts, err := c.options(stderr)
	if err != nil {
		return err
	}
	name, data, err := readInput(cmd, input)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if c.output != "" {
		f, err := os.Create(c.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	r, err := cpp.New(name, data, opts)
	if err != nil {
		return reported(err)
	}
	if c.loadMacros != "" {
		if err := loadMacros(r, c.loadMacros); err != nil {
			return err
		}
		opts.Logger.Debug("macros loaded", "file", c.loadMacros)
	}

	if c.tokens {
		err = printTokens(out, r)
	} else {
		err = cpp.Print(out, r)
	}
	if err != nil {
		return reported(err)
	}

	if c.dumpMacros {
		for _, m := range r.Macros().All() {
			if m.Builtin == macro.NotBuiltin {
				fmt.Fprintf(out, "#define %s\n", m.Definition())
			}
		}
	}
	if c.saveMacros != "" {
		if err := saveMacros(r, c.saveMacros); err != nil {
			return err
		}
	}
	if r.Errors() > 0 {
		return errFailed
	}
	return nil
}

// reported maps errors the reader has already sent to the sink to
// errFailed.
func reported(err error) error {
	var e *cpp.Error
	if errors.As(err, &e) {
		return errFailed
	}
	return err
}

func printTokens(w io.Writer, r *cpp.Reader) error {
	for {
		t, err := r.Next()
		if err != nil {
			return err
		}
		if t.Kind == token.EOF {
			return nil
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Kind, strings.ReplaceAll(t.Spelling(), "\n", `\n`), t.Loc)
	}
}

func loadMacros(r *cpp.Reader, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load macros: %w", err)
	}
	defer f.Close()
	if _, err := snapshot.Load(f, r.Macros()); err != nil {
		return fmt.Errorf("load macros from %s: %w", path, err)
	}
	return nil
}

func saveMacros(r *cpp.Reader, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save macros: %w", err)
	}
	if err := snapshot.Save(f, r.Macros()); err != nil {
		f.Close()
		return fmt.Errorf("save macros to %s: %w", path, err)
	}
	return f.Close()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "cpp:", err)
		}
		os.Exit(1)
	}
}
