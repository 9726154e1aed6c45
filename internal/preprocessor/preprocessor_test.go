package preprocessor

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwessels/cpp/internal/diag"
	"github.com/fwessels/cpp/internal/macro"
	"github.com/fwessels/cpp/internal/token"
)

func TestLex(t *testing.T) {
	for _, tt := range lexTests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lexDrain(tt.input)
			if err != nil {
				t.Fatalf("lex error: %v", err)
			}
			if diff := cmp.Diff(tt.output, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBadLex(t *testing.T) {
	for _, tt := range badLexTests {
		t.Run(tt.error, func(t *testing.T) {
			bag := &diag.Bag{}
			_, err := drain(tt.input, Options{Sink: bag})
			if err != nil {
				t.Fatalf("unexpected fatal error: %v", err)
			}
			if diff := cmp.Diff([]string{tt.error}, errorMessages(bag)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func lines(a ...string) string {
	return strings.Join(a, "\n") + "\n"
}

func lexDrain(input string) (string, error) {
	return drain(input, Options{})
}

// drain preprocesses input and joins the token spellings with dots. A
// newline item marks the start of each output line after the first.
func drain(input string, opts Options) (string, error) {
	r, err := New("test.c", []byte(input), opts)
	if err != nil {
		return "", err
	}
	return drainReader(r, strings.HasSuffix(input, "\n"))
}

func drainReader(r *Reader, finalNewline bool) (string, error) {
	var parts []string
	for {
		t, err := r.Next()
		if err != nil {
			return "", err
		}
		if t.Kind == token.EOF {
			break
		}
		if t.Flags&token.BOL != 0 && len(parts) > 0 {
			parts = append(parts, "\n")
		}
		parts = append(parts, t.Spelling())
	}
	if len(parts) > 0 && finalNewline {
		parts = append(parts, "\n")
	}
	return strings.Join(parts, "."), nil
}

func errorMessages(bag *diag.Bag) []string {
	var out []string
	for _, d := range bag.Diagnostics() {
		if d.Severity >= diag.Error {
			out = append(out, d.Msg)
		}
	}
	return out
}

type lexTest struct {
	name   string
	input  string
	output string
}

var lexTests = []lexTest{
	{
		"empty",
		"",
		"",
	},
	{
		"simple",
		"1 (a)",
		"1.(.a.)",
	},
	{
		"simple define",
		lines(
			"#define A 1234",
			"A",
		),
		"1234.\n",
	},
	{
		"define without value",
		"#define A",
		"",
	},
	{
		"macro without arguments",
		"#define A() 1234\n" + "A()\n",
		"1234.\n",
	},
	{
		"macro with just parens as body",
		"#define A () \n" + "A\n",
		"(.).\n",
	},
	{
		"macro with parens but no arguments",
		"#define A (x) \n" + "A\n",
		"(.x.).\n",
	},
	{
		"macro with arguments",
		"#define A(x, y, z) x+z+y\n" + "A(1, 2, 3)\n",
		"1.+.3.+.2.\n",
	},
	{
		"argumented macro invoked without arguments",
		lines(
			"#define X() foo ",
			"X()",
			"X",
		),
		"foo.\n.X.\n",
	},
	{
		"multiline macro without arguments",
		lines(
			"#define A 1\\",
			"\t2\\",
			"\t3",
			"before",
			"A",
			"after",
		),
		"before.\n.1.2.3.\n.after.\n",
	},
	{
		"multiline macro with arguments",
		lines(
			"#define A(a, b, c) a\\",
			"\tb\\",
			"\tc",
			"before",
			"A(1, 2, 3)",
			"after",
		),
		"before.\n.1.2.3.\n.after.\n",
	},
	{
		"LOAD macro",
		lines(
			"#define LOAD(off, reg) \\",
			"\tMOV (off*4), reg",
			"LOAD(8, AX)",
		),
		"MOV.(.8.*.4.).,.AX.\n",
	},
	{
		"arguments spanning lines",
		lines(
			"#define F(x, y) [x, y]",
			"F",
			"(1,",
			"2)",
		),
		"[.1.,.2.].\n",
	},
	{
		"function-like name without arguments",
		lines(
			"#define F(x) x",
			"F",
			"+",
		),
		"F.\n.+.\n",
	},
	{
		"empty argument",
		lines(
			"#define F(x) [x]",
			"F()",
		),
		"[.].\n",
	},
	{
		"argument pre-expansion",
		lines(
			"#define A 1",
			"#define F(x) x",
			"F(A)",
		),
		"1.\n",
	},
	{
		"taken #ifdef",
		lines(
			"#define A",
			"#ifdef A",
			"#define B 1234",
			"#endif",
			"B",
		),
		"1234.\n",
	},
	{
		"not taken #ifdef",
		lines(
			"#ifdef A",
			"#define B 1234",
			"#endif",
			"B",
		),
		"B.\n",
	},
	{
		"taken #ifdef with else",
		lines(
			"#define A",
			"#ifdef A",
			"#define B 1234",
			"#else",
			"#define B 5678",
			"#endif",
			"B",
		),
		"1234.\n",
	},
	{
		"not taken #ifdef with else",
		lines(
			"#ifdef A",
			"#define B 1234",
			"#else",
			"#define B 5678",
			"#endif",
			"B",
		),
		"5678.\n",
	},
	{
		"nested taken/taken #ifdef",
		lines(
			"#define A",
			"#define B",
			"#ifdef A",
			"#ifdef B",
			"#define C 1234",
			"#else",
			"#define C 5678",
			"#endif",
			"#endif",
			"C",
		),
		"1234.\n",
	},
	{
		"nested taken/not-taken #ifdef",
		lines(
			"#define A",
			"#ifdef A",
			"#ifdef B",
			"#define C 1234",
			"#else",
			"#define C 5678",
			"#endif",
			"#endif",
			"C",
		),
		"5678.\n",
	},
	{
		"nested not-taken/would-be-taken #ifdef",
		lines(
			"#define B",
			"#ifdef A",
			"#ifdef B",
			"#define C 1234",
			"#else",
			"#define C 5678",
			"#endif",
			"#endif",
			"C",
		),
		"C.\n",
	},
	{
		"nested not-taken/not-taken #ifdef",
		lines(
			"#ifdef A",
			"#ifdef B",
			"#define C 1234",
			"#else",
			"#define C 5678",
			"#endif",
			"#endif",
			"C",
		),
		"C.\n",
	},
	{
		"#ifndef",
		lines(
			"#ifndef A",
			"yes",
			"#endif",
		),
		"yes.\n",
	},
	{
		"#elif chain",
		lines(
			"#if 0",
			"a",
			"#elif 1",
			"b",
			"#elif 1",
			"c",
			"#else",
			"d",
			"#endif",
		),
		"b.\n",
	},
	{
		"#error in skipped group",
		lines(
			"#if 0",
			"#error no",
			"#bogus",
			"#endif",
			"x",
		),
		"x.\n",
	},
	{
		"defined operator",
		lines(
			"#define X 2",
			"#if defined(X) && X > 1 && !defined Y",
			"ok",
			"#endif",
		),
		"ok.\n",
	},
	{
		"directive-looking expansion",
		lines(
			"#define A #define B THIS",
			"A",
			"B",
		),
		"#.define.B.THIS.\n.B.\n",
	},
	{
		"#undef",
		lines(
			"#define A 1",
			"#undef A",
			"A",
		),
		"A.\n",
	},
	{
		"self reference",
		lines(
			"#define A A",
			"A",
		),
		"A.\n",
	},
	{
		"mutual reference",
		lines(
			"#define A B",
			"#define B A",
			"A B",
		),
		"A.B.\n",
	},
	{
		"name painted inside its own expansion",
		lines(
			"#define f(x) x f",
			"f(1)(2)",
		),
		"1.f.(.2.).\n",
	},
	{
		"stringify",
		lines(
			"#define S(x) #x",
			"S(a+b)",
			"S( a  +  b )",
		),
		`"a+b"` + ".\n." + `"a + b"` + ".\n",
	},
	{
		"stringify escapes literals",
		lines(
			"#define S(x) #x",
			`S("x\n")`,
		),
		`"\"x\\n\""` + ".\n",
	},
	{
		"paste",
		lines(
			"#define CAT(a, b) a ## b",
			"CAT(x, y) CAT(1, 2)",
		),
		"xy.12.\n",
	},
	{
		"paste with empty operand",
		lines(
			"#define CAT(a, b) [a ## b]",
			"CAT(, y) CAT(x, )",
		),
		"[.y.].[.x.].\n",
	},
	{
		"variadic forwarding",
		lines(
			"#define F(fmt, ...) f(fmt, __VA_ARGS__)",
			"F(a, b, c)",
		),
		"f.(.a.,.b.,.c.).\n",
	},
	{
		"GNU comma elision",
		lines(
			"#define G(fmt, ...) g(fmt , ## __VA_ARGS__)",
			"G(a)",
			"G(a, b)",
		),
		"g.(.a.).\n.g.(.a.,.b.).\n",
	},
	{
		"named variadic parameter",
		lines(
			"#define E(args...) e(args)",
			"E(1, 2)",
		),
		"e.(.1.,.2.).\n",
	},
	{
		"__LINE__",
		lines(
			"__LINE__",
			"",
			"__LINE__",
		),
		"1.\n.3.\n",
	},
	{
		"__FILE__ and __BASE_FILE__",
		"__FILE__ __BASE_FILE__\n",
		`"test.c"."test.c"` + ".\n",
	},
	{
		"__COUNTER__",
		"__COUNTER__ __COUNTER__ __INCLUDE_LEVEL__\n",
		"0.1.0.\n",
	},
	{
		"#line",
		lines(
			"#line 100",
			"__LINE__",
			`#line 7 "foo.c"`,
			"__FILE__ __LINE__",
		),
		"100.\n." + `"foo.c"` + ".7.\n",
	},
	{
		"linemarker",
		lines(
			`# 20 "bar.h" 1 3`,
			"__FILE__ __LINE__",
		),
		`"bar.h"` + ".20.\n",
	},
	{
		"null directive",
		lines(
			"#",
			"x",
		),
		"x.\n",
	},
}

type badLexTest struct {
	input string
	error string
}

var badLexTests = []badLexTest{
	{
		"#endif\n",
		"#endif without #if",
	},
	{
		"#else\n",
		"#else without #if",
	},
	{
		"#incude \"x\"\n",
		"invalid preprocessing directive #incude; did you mean #include?",
	},
	{
		"#define 3 x\n",
		"macro names must be identifiers",
	},
	{
		"#define\n",
		"no macro name given in #define directive",
	},
	{
		"#define defined\n",
		`"defined" cannot be used as a macro name`,
	},
	{
		"#define F(x x) x\n",
		"macro parameters must be comma-separated",
	},
	{
		"#define F(x, x) x\n",
		`duplicate macro parameter "x"`,
	},
	{
		"#define F(x,) x\n",
		"parameter name missing",
	},
	{
		"#define F(x\n",
		"missing ')' in macro parameter list",
	},
	{
		"#define F(x) #y\n",
		"'#' is not followed by a macro parameter",
	},
	{
		"#define F(x) ## x\n",
		"'##' cannot appear at either end of a macro expansion",
	},
	{
		"#define F(x) x ##\n",
		"'##' cannot appear at either end of a macro expansion",
	},
	{
		"#define F(x, y) x\nF(1)\n",
		`macro "F" requires 2 arguments, but only 1 given`,
	},
	{
		"#define F(x) x\nF(1, 2)\n",
		`macro "F" passed 2 arguments, but takes just 1`,
	},
	{
		"#define CAT(a, b) a ## b\nCAT(+, -)\n",
		`pasting "+" and "-" does not give a valid preprocessing token`,
	},
	{
		"#if\n#endif\n",
		"#if with no expression",
	},
	{
		"#if 1/0\n#endif\n",
		"division by zero in #if",
	},
	{
		"#if defined(\n#endif\n",
		`operator "defined" requires an identifier`,
	},
	{
		"#if defined(X\n#endif\n",
		`missing ')' after "defined"`,
	},
	{
		"#line x\n",
		`"x" after #line is not a positive integer`,
	},
	{
		"#include\n",
		`#include expects "FILENAME" or <FILENAME>`,
	},
	{
		"#include \"\"\n",
		"empty filename in #include",
	},
	{
		"#include \"nope.h\"\n",
		"nope.h: No such file or directory",
	},
	{
		"#error stop here\n",
		"#error stop here",
	},
	{
		"#ident x\n",
		"invalid #ident directive",
	},
	{
		"_Pragma(1)\n",
		"_Pragma takes a parenthesized string literal",
	},
}

func TestElseAfterElse(t *testing.T) {
	bag := &diag.Bag{}
	_, err := drain(lines("#if 1", "#else", "#else", "#endif"), Options{Sink: bag})
	require.NoError(t, err)

	ds := bag.Diagnostics()
	require.Len(t, ds, 2)
	assert.Equal(t, "#else after #else", ds[0].Msg)
	assert.Equal(t, diag.Note, ds[1].Severity)
	assert.Equal(t, "the conditional began here", ds[1].Msg)
	assert.Equal(t, 1, ds[1].Loc.Position().Line)
}

func TestFailedPasteKeepsBothTokens(t *testing.T) {
	bag := &diag.Bag{}
	got, err := drain(lines("#define CAT(a, b) a ## b", "CAT(+, -)"), Options{Sink: bag})
	require.NoError(t, err)
	assert.Equal(t, "+.-.\n", got)
}

func TestDeterministic(t *testing.T) {
	input := lines(
		"#define S(x) #x",
		"#define CAT(a, b) a ## b",
		"#define F(x, ...) S(x) CAT(x, __VA_ARGS__)",
		"F(a, b) F(c, d) __COUNTER__",
	)
	first, err := lexDrain(input)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := lexDrain(input)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, `"a".ab."c".cd.0`+".\n", first)
}

func TestFatalErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  Options
		want  error
	}{
		{"unterminated call", "#define F(x) x\nF(1\n", Options{}, ErrUnterminatedCall},
		{"unterminated conditional", "#if 1\nx\n", Options{}, ErrUnterminatedConditional},
		{"redefinition", "#define A 1\n#define A 2\n", Options{Redefinition: macro.RedefineFatal}, ErrRedefined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := drain(tt.input, tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.True(t, e.Loc.IsValid())
		})
	}
}

func TestFatalIsSticky(t *testing.T) {
	r, err := New("test.c", []byte("#define F(x) x\nF(1\n"), Options{})
	require.NoError(t, err)
	_, err = r.Next()
	require.ErrorIs(t, err, ErrUnterminatedCall)
	_, again := r.Next()
	assert.Same(t, err, again)
}

func TestRedefinitionWarns(t *testing.T) {
	bag := &diag.Bag{}
	got, err := drain(lines("#define A 1", "#define A 2", "A"), Options{Sink: bag})
	require.NoError(t, err)
	assert.Equal(t, "1.\n", got)
	assert.Contains(t, bag.Messages(), `"A" redefined`)
}

func TestCommandLineDefines(t *testing.T) {
	opts := Options{
		Defines:   []string{"X=3", "Y", "F(a)=a+1", "Z=9"},
		Undefines: []string{"Z"},
	}
	got, err := drain("X Y F(2) Z\n", opts)
	require.NoError(t, err)
	assert.Equal(t, "3.1.2.+.1.Z.\n", got)
}

func TestParseDefine(t *testing.T) {
	tests := []struct{ in, name, value string }{
		{"A", "A", "1"},
		{"A=", "A", ""},
		{"A=b=c", "A", "b=c"},
		{"F(x)=x", "F(x)", "x"},
	}
	for _, tt := range tests {
		name, value := ParseDefine(tt.in)
		assert.Equal(t, tt.name, name, tt.in)
		assert.Equal(t, tt.value, value, tt.in)
	}
}

func TestBuiltinDateTime(t *testing.T) {
	now := func() time.Time { return time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC) }
	got, err := drain("__DATE__ __TIME__\n", Options{Now: now})
	require.NoError(t, err)
	assert.Equal(t, `"Mar  5 2024"."14:07:09"`+".\n", got)
}

func TestTraditional(t *testing.T) {
	got, err := drain(lines(
		"#define CAT(a,b) a/**/b",
		`#define STR(x) "x"`,
		"#define ONE 1 /* one */",
		"CAT(x,y) STR(hi) ONE",
	), Options{Traditional: true})
	require.NoError(t, err)
	assert.Equal(t, `xy."hi".1`+".\n", got)
}

func TestPragmas(t *testing.T) {
	var got []string
	opts := Options{Pragma: func(loc token.Loc, toks []token.Token) {
		var parts []string
		for _, t := range toks {
			parts = append(parts, t.Spelling())
		}
		got = append(got, strings.Join(parts, " "))
	}}
	out, err := drain(lines(
		"#pragma foo bar",
		`_Pragma("baz \"q\"") x`,
	), opts)
	require.NoError(t, err)
	assert.Equal(t, "x.\n", out)
	assert.Equal(t, []string{"foo bar", `baz "q"`}, got)
}

func TestPragmaOnceInMainFile(t *testing.T) {
	bag := &diag.Bag{}
	_, err := drain("#pragma once\n", Options{Sink: bag})
	require.NoError(t, err)
	assert.Equal(t, []string{"#pragma once in main file"}, bag.Messages())
}

func TestIdent(t *testing.T) {
	r, err := New("test.c", []byte("#ident \"v1\"\n#sccs \"v2\"\n"), Options{})
	require.NoError(t, err)
	_, err = drainReader(r, true)
	require.NoError(t, err)
	assert.Equal(t, []string{`"v1"`, `"v2"`}, r.Idents())
}

func TestWarnings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  Options
		want  string
	}{
		{"#warning", "#warning careful\n", Options{}, "#warning careful"},
		{"extra tokens", "#ifdef A B\n#endif\n", Options{}, "extra tokens at end of #ifdef directive"},
		{"no whitespace after name", "#define A+\n", Options{}, "ISO C99 requires whitespace after the macro name"},
		{"missing newline", "x", Options{}, "no newline at end of file"},
		{"unused macro", "#define U 1\n#define V 2\nV\n", Options{WarnUnusedMacros: true}, `macro "U" is not used`},
		{"rest arguments", "#define F(x, ...) x\nF(1)\n", Options{Pedantic: true}, "ISO C99 requires rest arguments to be used"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bag := &diag.Bag{}
			tt.opts.Sink = bag
			_, err := drain(tt.input, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, bag.Messages())
		})
	}
}

func TestExpressions(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{"1", true},
		{"0", false},
		{"2 > 1", true},
		{"-1 < 0", true},
		{"-1 < 0u", false},
		{"0x10 == 16", true},
		{"010 == 8", true},
		{"'a' == 97", true},
		{`'\n' == 10`, true},
		{"(1 ? 2 : 3) == 2", true},
		{"0 ? 2 : 3", true},
		{"1 || 1/0", true},
		{"0 && 1/0", false},
		{"~0 == -1", true},
		{"1 << 3 == 8", true},
		{"7 % 3 == 1", true},
		{"10 / 3 == 3", true},
		{"(2, 0)", false},
		{"UNDEFINED == 0", true},
		{"!0", true},
		{"1 + 2 * 3 == 7", true},
		{"(1 | 2) ^ 1 == 2", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			bag := &diag.Bag{}
			got, err := drain(lines("#if "+tt.expr, "yes", "#endif"), Options{Sink: bag})
			require.NoError(t, err)
			assert.Empty(t, errorMessages(bag))
			assert.Equal(t, tt.want, got == "yes.\n", got)
		})
	}
}

func TestExprErrors(t *testing.T) {
	num := func(s string) token.Token { return token.Token{Kind: token.Number, Text: s} }
	op := func(k token.Kind) token.Token { return token.Token{Kind: k} }
	tests := []struct {
		name string
		toks []token.Token
		want string
	}{
		{"division", []token.Token{num("1"), op(token.Div), num("0")}, "division by zero in #if"},
		{"two operands", []token.Token{num("1"), num("2")}, `missing binary operator before token "2"`},
		{"open paren", []token.Token{op(token.OpenParen), num("1")}, "missing ')' in expression"},
		{"float", []token.Token{num("1.0")}, "floating constant in preprocessor expression"},
		{"dangling operator", []token.Token{num("1"), op(token.Plus)}, "missing operand in expression"},
		{"bad suffix", []token.Token{num("1q")}, `invalid suffix "q" on integer constant`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExprEvaluator{}.Eval(tt.toks)
			var ee *ExprError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, tt.want, ee.Msg)
		})
	}
}

func includeOpts(fsys fstest.MapFS, dirs ...string) Options {
	return Options{Opener: &DirOpener{FS: fsys, IncludeDirs: dirs}}
}

func TestInclude(t *testing.T) {
	fsys := fstest.MapFS{
		"a.h":            {Data: []byte("#define A 42\n")},
		"once.h":         {Data: []byte("#pragma once\nonce\n")},
		"imp.h":          {Data: []byte("imp\n")},
		"inc/b.h":        {Data: []byte("B __INCLUDE_LEVEL__\n")},
		"inc1/c.h":       {Data: []byte("#include_next <c.h>\none\n")},
		"inc2/c.h":       {Data: []byte("two\n")},
		"inc/macro.h":    {Data: []byte("m\n")},
		"sub/d.h":        {Data: []byte("#include \"e.h\"\n")},
		"sub/e.h":        {Data: []byte("e __FILE__\n")},
		"unterminated.h": {Data: []byte("#ifdef X\n")},
	}
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"quoted", lines(`#include "a.h"`, "A"), "42.\n"},
		{"pragma once", lines(`#include "once.h"`, `#include "once.h"`), "once.\n"},
		{"import", lines(`#import "imp.h"`, `#include "imp.h"`), "imp.\n"},
		{"angled", lines("#include <b.h>"), "B.1.\n"},
		{"include_next", lines("#include <c.h>"), "two.\n.one.\n"},
		{"macro-expanded name", lines("#define H <macro.h>", "#include H"), "m.\n"},
		{"relative to includer", lines(`#include "sub/d.h"`), "e." + `"sub/e.h"` + ".\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := includeOpts(fsys, "inc", "inc1", "inc2")
			r, err := New("main.c", []byte(tt.input), opts)
			require.NoError(t, err)
			got, err := drainReader(r, true)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
			assert.Zero(t, r.Errors())
		})
	}
}

func TestIncludeErrors(t *testing.T) {
	fsys := fstest.MapFS{
		"self.h":         {Data: []byte("#include \"self.h\"\n")},
		"unterminated.h": {Data: []byte("#ifdef X\n")},
	}

	opts := includeOpts(fsys)
	opts.MaxDepth = 5
	r, err := New("main.c", []byte("#include \"self.h\"\n"), opts)
	require.NoError(t, err)
	_, err = drainReader(r, true)
	require.ErrorIs(t, err, ErrStackDepth)

	r, err = New("main.c", []byte("#include \"unterminated.h\"\n#endif\n"), includeOpts(fsys))
	require.NoError(t, err)
	_, err = drainReader(r, true)
	require.ErrorIs(t, err, ErrUnterminatedConditional)
}

func TestMissingIncludeIsRecoverable(t *testing.T) {
	bag := &diag.Bag{}
	opts := includeOpts(fstest.MapFS{})
	opts.Sink = bag
	r, err := New("main.c", []byte(lines(`#include "nope.h"`, "x")), opts)
	require.NoError(t, err)
	got, err := drainReader(r, true)
	require.NoError(t, err)
	assert.Equal(t, "x.\n", got)
	assert.Equal(t, 1, r.Errors())
	assert.Equal(t, []string{"nope.h: No such file or directory"}, bag.Messages())
}

func TestSystemHeaderMacros(t *testing.T) {
	fsys := fstest.MapFS{
		"sys/s.h": {Data: []byte("#define S 1\n")},
		"u.h":     {Data: []byte("#pragma GCC system_header\n#define T 1\n")},
	}
	opts := Options{Opener: &DirOpener{FS: fsys, SystemDirs: []string{"sys"}}, WarnUnusedMacros: true}
	bag := &diag.Bag{}
	opts.Sink = bag
	r, err := New("main.c", []byte(lines("#include <s.h>", `#include "u.h"`, "#define M 1")), opts)
	require.NoError(t, err)
	_, err = drainReader(r, true)
	require.NoError(t, err)

	assert.True(t, r.Macros().Peek("S").System)
	assert.True(t, r.Macros().Peek("T").System)
	assert.False(t, r.Macros().Peek("M").System)
	assert.Equal(t, []string{`macro "M" is not used`}, bag.Messages())

	var unused []string
	for _, m := range r.Unused() {
		unused = append(unused, m.Name)
	}
	assert.Equal(t, []string{"M"}, unused)
}

func TestDefineLogging(t *testing.T) {
	var buf bytes.Buffer
	input := lines("#define F(x, ...) x __VA_ARGS__")

	quiet := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	_, err := drain(input, Options{Logger: quiet})
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	verbose := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	_, err = drain(input, Options{Logger: verbose})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `macro="F(x, ...) x __VA_ARGS__"`)
}
