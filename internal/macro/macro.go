// Package macro holds macro definitions and the table that maps names to
// them.
package macro

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fwessels/cpp/internal/diag"
	"github.com/fwessels/cpp/internal/token"
)

// Builtin identifies macros whose expansion the engine computes.
type Builtin uint8

const (
	NotBuiltin Builtin = iota
	BuiltinFile
	BuiltinBaseFile
	BuiltinLine
	BuiltinIncludeLevel
	BuiltinCounter
	BuiltinDate
	BuiltinTime
	BuiltinPragma
)

var builtinNames = map[string]Builtin{
	"__FILE__":          BuiltinFile,
	"__BASE_FILE__":     BuiltinBaseFile,
	"__LINE__":          BuiltinLine,
	"__INCLUDE_LEVEL__": BuiltinIncludeLevel,
	"__COUNTER__":       BuiltinCounter,
	"__DATE__":          BuiltinDate,
	"__TIME__":          BuiltinTime,
	"_Pragma":           BuiltinPragma,
}

// VarArgs is the name of the implicit variadic parameter.
const VarArgs = "__VA_ARGS__"

// Macro is one definition. It is immutable once entered in a table, apart
// from the used flag.
type Macro struct {
	Name     string
	Params   []string
	Fun      bool // function-like
	Variadic bool // last parameter absorbs the trailing arguments

	// Tokens is the replacement list. MacroArg tokens refer to Params by
	// index and carry the Stringify and PasteLeft flags resolved when the
	// macro was defined.
	Tokens []token.Token

	// Traditional macros keep their replacement as raw text instead.
	Traditional bool
	Text        string

	System  bool // defined in a system header
	Builtin Builtin
	Loc     token.Loc

	seq  int
	used bool
}

// Used reports whether the macro was ever looked up or tested.
func (m *Macro) Used() bool { return m.used }

// MarkUsed sets the used flag.
func (m *Macro) MarkUsed() { m.used = true }

// Identical reports whether m and o are the same definition: parameters,
// their spellings and the replacement lists must match token for token.
// Traditional replacements compare with whitespace runs collapsed.
func (m *Macro) Identical(o *Macro) bool {
	if m.Builtin != NotBuiltin || o.Builtin != NotBuiltin {
		return false
	}
	if m.Fun != o.Fun || m.Variadic != o.Variadic || m.Traditional != o.Traditional || len(m.Params) != len(o.Params) {
		return false
	}
	for i := range m.Params {
		if m.Params[i] != o.Params[i] {
			return false
		}
	}
	if m.Traditional {
		return strings.Join(strings.Fields(m.Text), " ") == strings.Join(strings.Fields(o.Text), " ")
	}
	if len(m.Tokens) != len(o.Tokens) {
		return false
	}
	for i := range m.Tokens {
		if !m.Tokens[i].Equivalent(o.Tokens[i]) {
			return false
		}
	}
	return true
}

// Definition renders the macro the way a #define line would spell it,
// without the directive name.
func (m *Macro) Definition() string {
	var b strings.Builder
	b.WriteString(m.Name)
	if m.Fun {
		b.WriteByte('(')
		for i, p := range m.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			switch {
			case m.Variadic && i == len(m.Params)-1 && p == VarArgs:
				b.WriteString("...")
			case m.Variadic && i == len(m.Params)-1:
				b.WriteString(p + "...")
			default:
				b.WriteString(p)
			}
		}
		b.WriteByte(')')
	}
	if m.Traditional {
		if m.Text != "" {
			b.WriteByte(' ')
			b.WriteString(m.Text)
		}
		return b.String()
	}
	for i, t := range m.Tokens {
		if i == 0 || t.Flags&token.PrevWhite != 0 {
			b.WriteByte(' ')
		}
		if t.Kind == token.MacroArg {
			if t.Flags&token.Stringify != 0 {
				b.WriteByte('#')
			}
			b.WriteString(m.Params[t.Arg])
		} else {
			b.WriteString(t.Spelling())
		}
		if t.Flags&token.PasteLeft != 0 {
			b.WriteString(" ##")
		}
	}
	return b.String()
}

// Policy decides what a mismatched redefinition does.
type Policy uint8

const (
	// RedefineWarn reports a warning and keeps the old definition.
	RedefineWarn Policy = iota
	// RedefineReplace reports a warning and installs the new definition.
	RedefineReplace
	// RedefineError reports an error and keeps the old definition.
	RedefineError
	// RedefineFatal makes Define fail with ErrRedefined.
	RedefineFatal
)

var policyNames = []string{"warn", "replace", "error", "fatal"}

func (p Policy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("Policy(%d)", p)
}

// ParsePolicy maps a policy name back to its value.
func ParsePolicy(s string) (Policy, error) {
	for i, n := range policyNames {
		if n == s {
			return Policy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown redefinition policy %q (want one of %s)", s, strings.Join(policyNames, ", "))
}

var ErrRedefined = errors.New("macro redefined")

// Table maps names to macros.
type Table struct {
	macros map[string]*Macro
	policy Policy
	sink   diag.Sink
	seq    int
}

// NewTable returns an empty table.
func NewTable(policy Policy, sink diag.Sink) *Table {
	if sink == nil {
		sink = diag.Discard
	}
	return &Table{macros: make(map[string]*Macro), policy: policy, sink: sink}
}

// Policy returns the redefinition policy.
func (t *Table) Policy() Policy { return t.policy }

func (t *Table) report(sev diag.Severity, loc token.Loc, format string, args ...any) {
	t.sink.Report(diag.Diagnostic{Severity: sev, Loc: loc, Msg: fmt.Sprintf(format, args...)})
}

// Define enters m. An identical redefinition is accepted silently. A
// mismatched one is handled by the table's policy; only RedefineFatal
// returns an error.
func (t *Table) Define(m *Macro) error {
	old, ok := t.macros[m.Name]
	if ok && old.Identical(m) {
		return nil
	}
	if ok {
		what := "redefined"
		if old.Builtin != NotBuiltin {
			what = "redefined (built-in macro)"
		}
		switch t.policy {
		case RedefineFatal:
			return fmt.Errorf("%s: %w: %q", m.Loc, ErrRedefined, m.Name)
		case RedefineError:
			t.report(diag.Error, m.Loc, "%q %s", m.Name, what)
		default:
			t.report(diag.Pedwarn, m.Loc, "%q %s", m.Name, what)
		}
		if old.Loc.IsValid() {
			t.report(diag.Note, old.Loc, "this is the location of the previous definition")
		}
		if t.policy != RedefineReplace {
			return nil
		}
	}
	t.seq++
	m.seq = t.seq
	t.macros[m.Name] = m
	return nil
}

// Undef removes name and reports whether it was defined.
func (t *Table) Undef(name string, loc token.Loc) bool {
	m, ok := t.macros[name]
	if !ok {
		return false
	}
	if m.Builtin != NotBuiltin {
		t.report(diag.Pedwarn, loc, "undefining %q", name)
	}
	delete(t.macros, name)
	return true
}

// Lookup returns the macro for name and marks it used.
func (t *Table) Lookup(name string) *Macro {
	m := t.macros[name]
	if m != nil {
		m.used = true
	}
	return m
}

// IsDefined tests name and marks the macro used.
func (t *Table) IsDefined(name string) bool {
	return t.Lookup(name) != nil
}

// Peek returns the macro for name without touching its used flag.
func (t *Table) Peek(name string) *Macro { return t.macros[name] }

// Len returns the number of macros, builtins included.
func (t *Table) Len() int { return len(t.macros) }

// All returns every macro in definition order.
func (t *Table) All() []*Macro {
	out := make([]*Macro, 0, len(t.macros))
	for _, m := range t.macros {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Unused returns the user macros, outside system headers, that were never
// used, in definition order.
func (t *Table) Unused() []*Macro {
	var out []*Macro
	for _, m := range t.All() {
		if !m.used && !m.System && m.Builtin == NotBuiltin {
			out = append(out, m)
		}
	}
	return out
}

// DefineBuiltins enters the built-in macros.
func (t *Table) DefineBuiltins() {
	names := make([]string, 0, len(builtinNames))
	for n := range builtinNames {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		t.seq++
		t.macros[n] = &Macro{Name: n, Builtin: builtinNames[n], Fun: builtinNames[n] == BuiltinPragma, seq: t.seq}
	}
}

// IsBuiltinName reports whether name is reserved for a built-in macro.
func IsBuiltinName(name string) bool {
	_, ok := builtinNames[name]
	return ok
}
