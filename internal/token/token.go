// Package token defines preprocessing tokens and the run store the lexer
// writes them into.
package token

import (
	"fmt"

	srctoken "modernc.org/token"
)

// Kind classifies a preprocessing token.
type Kind uint8

const (
	EOF Kind = iota

	// Operators and punctuators.
	Eq
	Not
	Greater
	Less
	Plus
	Minus
	Mult
	Div
	Mod
	And
	Or
	Xor
	RShift
	LShift
	Compl
	AndAnd
	OrOr
	Query
	Colon
	Comma
	OpenParen
	CloseParen
	EqEq
	NotEq
	GreaterEq
	LessEq
	PlusEq
	MinusEq
	MultEq
	DivEq
	ModEq
	AndEq
	OrEq
	XorEq
	RShiftEq
	LShiftEq
	Hash
	Paste
	OpenSquare
	CloseSquare
	OpenBrace
	CloseBrace
	Semicolon
	Ellipsis
	PlusPlus
	MinusMinus
	Deref
	Dot
	Scope
	DerefStar
	DotStar

	// Spelled tokens.
	Name
	Number
	Char
	WChar
	String
	WString
	HeaderName
	Other
	Comment

	// MacroArg only appears in macro replacement lists: a reference to the
	// parameter with index Token.Arg.
	MacroArg

	numKinds
)

const lastOperator = DotStar

var spellings = [numKinds]string{
	Eq: "=", Not: "!", Greater: ">", Less: "<", Plus: "+", Minus: "-",
	Mult: "*", Div: "/", Mod: "%", And: "&", Or: "|", Xor: "^",
	RShift: ">>", LShift: "<<", Compl: "~", AndAnd: "&&", OrOr: "||",
	Query: "?", Colon: ":", Comma: ",", OpenParen: "(", CloseParen: ")",
	EqEq: "==", NotEq: "!=", GreaterEq: ">=", LessEq: "<=",
	PlusEq: "+=", MinusEq: "-=", MultEq: "*=", DivEq: "/=", ModEq: "%=",
	AndEq: "&=", OrEq: "|=", XorEq: "^=", RShiftEq: ">>=", LShiftEq: "<<=",
	Hash: "#", Paste: "##", OpenSquare: "[", CloseSquare: "]",
	OpenBrace: "{", CloseBrace: "}", Semicolon: ";", Ellipsis: "...",
	PlusPlus: "++", MinusMinus: "--", Deref: "->", Dot: ".", Scope: "::",
	DerefStar: "->*", DotStar: ".*",
}

var digraphs = [numKinds]string{
	Hash: "%:", Paste: "%:%:", OpenSquare: "<:", CloseSquare: ":>",
	OpenBrace: "<%", CloseBrace: "%>",
}

var names = [numKinds]string{
	EOF: "EOF", Name: "NAME", Number: "NUMBER", Char: "CHAR", WChar: "WCHAR",
	String: "STRING", WString: "WSTRING", HeaderName: "HEADER_NAME",
	Other: "OTHER", Comment: "COMMENT", MacroArg: "MACRO_ARG",
}

// IsOperator reports whether k is an operator or punctuator.
func (k Kind) IsOperator() bool { return k > EOF && k <= lastOperator }

// Valid reports whether k can appear in a macro replacement list.
func (k Kind) Valid() bool { return k > EOF && k < numKinds }

func (k Kind) String() string {
	if k.IsOperator() {
		return "PUNCT"
	}
	if k < numKinds && names[k] != "" {
		return names[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Flags qualify a token.
type Flags uint8

const (
	PrevWhite Flags = 1 << iota // whitespace precedes the token
	BOL                         // first token of a logical line
	Digraph                     // operator was spelled as a digraph
	Stringify                   // MacroArg is the operand of #
	PasteLeft                   // token is the left operand of ##
	NoExpand                    // name must not be macro-expanded again
)

// DefinitionFlags are the flags that take part in comparing two macro
// replacement lists.
const DefinitionFlags = PrevWhite | Digraph | Stringify | PasteLeft

// Loc is a source-location handle. The zero Loc marks tokens that have no
// source position, such as those of built-in macros.
type Loc struct {
	File *srctoken.File
	Pos  srctoken.Pos
}

// IsValid reports whether l refers to a file.
func (l Loc) IsValid() bool { return l.File != nil }

// Position resolves l, honouring #line adjustments.
func (l Loc) Position() srctoken.Position {
	if l.File == nil {
		return srctoken.Position{}
	}
	return l.File.PositionFor(l.Pos, true)
}

func (l Loc) String() string {
	if l.File == nil {
		return "<built-in>"
	}
	p := l.Position()
	return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
}

// Token is a preprocessing token.
type Token struct {
	Kind  Kind
	Flags Flags
	Text  string // spelling of non-operator tokens; parameter name for MacroArg
	Arg   int    // parameter index for MacroArg
	Loc   Loc
}

// Spelling returns the token's source text.
func (t Token) Spelling() string {
	if t.Kind.IsOperator() {
		if t.Flags&Digraph != 0 && digraphs[t.Kind] != "" {
			return digraphs[t.Kind]
		}
		return spellings[t.Kind]
	}
	return t.Text
}

// Is reports whether t has kind k.
func (t Token) Is(k Kind) bool { return t.Kind == k }

// Has reports whether all of f are set on t.
func (t Token) Has(f Flags) bool { return t.Flags&f == f }

// Equivalent reports whether t and u are the same token for the purpose of
// macro redefinition checks: kind, spelling, parameter and the definition
// flags must agree. Locations are ignored.
func (t Token) Equivalent(u Token) bool {
	if t.Kind != u.Kind || t.Flags&DefinitionFlags != u.Flags&DefinitionFlags {
		return false
	}
	if t.Kind == MacroArg {
		return t.Arg == u.Arg
	}
	return t.Text == u.Text
}

func (t Token) String() string {
	if t.Kind == EOF {
		return "EOF"
	}
	return t.Spelling()
}

// OperatorSpelling returns the plain spelling of an operator kind.
func OperatorSpelling(k Kind) string {
	if !k.IsOperator() {
		return ""
	}
	return spellings[k]
}
