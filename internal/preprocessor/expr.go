package preprocessor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fwessels/cpp/internal/token"
)

// ExprError is a malformed or unevaluable #if expression.
type ExprError struct {
	Loc token.Loc
	Msg string
}

func (e *ExprError) Error() string {
	if e.Loc.IsValid() {
		return fmt.Sprintf("%s: %s", e.Loc, e.Msg)
	}
	return e.Msg
}

// ExprEvaluator evaluates #if expressions in intmax_t / uintmax_t
// arithmetic. Identifiers left after expansion evaluate to 0.
type ExprEvaluator struct{}

// Eval implements Evaluator.
func (ExprEvaluator) Eval(toks []token.Token) (bool, error) {
	s := &exprScanner{toks: toks}
	v := s.comma(true)
	if s.err == nil && s.peek().Kind != token.EOF {
		t := s.peek()
		s.fail(t, "missing binary operator before token %q", t.Spelling())
	}
	if s.err != nil {
		return false, s.err
	}
	return v.n != 0, nil
}

type value struct {
	n        int64
	unsigned bool
}

func boolValue(b bool) value {
	if b {
		return value{n: 1}
	}
	return value{}
}

type exprScanner struct {
	toks []token.Token
	pos  int
	err  *ExprError
}

func (s *exprScanner) peek() token.Token {
	if s.pos < len(s.toks) {
		return s.toks[s.pos]
	}
	var loc token.Loc
	if len(s.toks) > 0 {
		loc = s.toks[len(s.toks)-1].Loc
	}
	return token.Token{Kind: token.EOF, Loc: loc}
}

func (s *exprScanner) next() token.Token {
	t := s.peek()
	if s.pos < len(s.toks) {
		s.pos++
	}
	return t
}

// fail records the first error; later ones are dropped.
func (s *exprScanner) fail(t token.Token, format string, args ...any) {
	if s.err == nil {
		s.err = &ExprError{Loc: t.Loc, Msg: fmt.Sprintf(format, args...)}
	}
}

// comma parses
//
//	expression:
//		conditional-expression
//		expression , conditional-expression
func (s *exprScanner) comma(eval bool) value {
	v := s.conditional(eval)
	for s.err == nil && s.peek().Kind == token.Comma {
		s.next()
		v = s.conditional(eval)
	}
	return v
}

// conditional parses
//
//	conditional-expression:
//		logical-OR-expression
//		logical-OR-expression ? expression : conditional-expression
func (s *exprScanner) conditional(eval bool) value {
	cond := s.logicalOr(eval)
	if s.peek().Kind != token.Query {
		return cond
	}
	s.next()
	taken := cond.n != 0
	a := s.comma(eval && taken)
	if t := s.peek(); t.Kind != token.Colon {
		s.fail(t, "'?' without following ':'")
		return cond
	}
	s.next()
	b := s.conditional(eval && !taken)
	// The usual arithmetic conversions apply to the result.
	unsigned := a.unsigned || b.unsigned
	if taken {
		a.unsigned = unsigned
		return a
	}
	b.unsigned = unsigned
	return b
}

func (s *exprScanner) logicalOr(eval bool) value {
	lhs := s.logicalAnd(eval)
	for s.peek().Kind == token.OrOr {
		s.next()
		rhs := s.logicalAnd(eval && lhs.n == 0)
		lhs = boolValue(lhs.n != 0 || rhs.n != 0)
	}
	return lhs
}

func (s *exprScanner) logicalAnd(eval bool) value {
	lhs := s.binary(eval, 0)
	for s.peek().Kind == token.AndAnd {
		s.next()
		rhs := s.binary(eval && lhs.n != 0, 0)
		lhs = boolValue(lhs.n != 0 && rhs.n != 0)
	}
	return lhs
}

// precedence lists the left-associative binary operators from loosest to
// tightest binding.
var precedence = [][]token.Kind{
	{token.Or},
	{token.Xor},
	{token.And},
	{token.EqEq, token.NotEq},
	{token.Less, token.Greater, token.LessEq, token.GreaterEq},
	{token.LShift, token.RShift},
	{token.Plus, token.Minus},
	{token.Mult, token.Div, token.Mod},
}

func (s *exprScanner) binary(eval bool, level int) value {
	if level == len(precedence) {
		return s.unary(eval)
	}
	lhs := s.binary(eval, level+1)
	for {
		op := s.peek()
		if !containsKind(precedence[level], op.Kind) {
			return lhs
		}
		s.next()
		rhs := s.binary(eval, level+1)
		if eval {
			lhs = s.apply(op, lhs, rhs)
		} else {
			lhs = value{unsigned: lhs.unsigned || rhs.unsigned}
		}
	}
}

func containsKind(ks []token.Kind, k token.Kind) bool {
	for _, x := range ks {
		if x == k {
			return true
		}
	}
	return false
}

func (s *exprScanner) apply(op token.Token, x, y value) value {
	switch op.Kind {
	case token.LShift, token.RShift:
		return shift(op.Kind, x, y)
	}
	unsigned := x.unsigned || y.unsigned
	a, b := x.n, y.n
	switch op.Kind {
	case token.EqEq:
		return boolValue(a == b)
	case token.NotEq:
		return boolValue(a != b)
	case token.Less, token.Greater, token.LessEq, token.GreaterEq:
		var lt, eq bool
		if unsigned {
			lt, eq = uint64(a) < uint64(b), a == b
		} else {
			lt, eq = a < b, a == b
		}
		switch op.Kind {
		case token.Less:
			return boolValue(lt)
		case token.Greater:
			return boolValue(!lt && !eq)
		case token.LessEq:
			return boolValue(lt || eq)
		default:
			return boolValue(!lt)
		}
	}

	var n int64
	switch op.Kind {
	case token.Or:
		n = a | b
	case token.Xor:
		n = a ^ b
	case token.And:
		n = a & b
	case token.Plus:
		n = a + b
	case token.Minus:
		n = a - b
	case token.Mult:
		n = a * b
	case token.Div, token.Mod:
		if b == 0 {
			s.fail(op, "division by zero in #if")
			return value{unsigned: unsigned}
		}
		switch {
		case unsigned && op.Kind == token.Div:
			n = int64(uint64(a) / uint64(b))
		case unsigned:
			n = int64(uint64(a) % uint64(b))
		case op.Kind == token.Div && !(a == -1<<63 && b == -1):
			n = a / b
		case op.Kind == token.Mod && b != -1:
			n = a % b
		case op.Kind == token.Div:
			n = a
		}
	}
	return value{n: n, unsigned: unsigned}
}

// shift takes the type of its left operand. A negative count shifts the
// other way.
func shift(op token.Kind, x, y value) value {
	count := y.n
	if !y.unsigned && count < 0 {
		count = -count
		if op == token.LShift {
			op = token.RShift
		} else {
			op = token.LShift
		}
	}
	if y.unsigned && uint64(count) >= 64 || count >= 64 {
		if op == token.RShift && !x.unsigned && x.n < 0 {
			return value{n: -1}
		}
		return value{unsigned: x.unsigned}
	}
	if op == token.LShift {
		return value{n: x.n << count, unsigned: x.unsigned}
	}
	if x.unsigned {
		return value{n: int64(uint64(x.n) >> count), unsigned: true}
	}
	return value{n: x.n >> count}
}

// unary parses
//
//	unary-expression:
//		primary-expression
//		unary-operator unary-expression
func (s *exprScanner) unary(eval bool) value {
	switch s.peek().Kind {
	case token.Plus:
		s.next()
		return s.unary(eval)
	case token.Minus:
		s.next()
		v := s.unary(eval)
		v.n = -v.n
		return v
	case token.Compl:
		s.next()
		v := s.unary(eval)
		v.n = ^v.n
		return v
	case token.Not:
		s.next()
		return boolValue(s.unary(eval).n == 0)
	}
	return s.primary(eval)
}

// primary parses
//
//	primary-expression:
//		identifier
//		constant
//		( expression )
func (s *exprScanner) primary(eval bool) value {
	t := s.next()
	switch t.Kind {
	case token.Number:
		v, err := parseNumber(t.Text)
		if err != "" {
			s.fail(t, "%s", err)
		}
		return v
	case token.Char, token.WChar:
		v, err := parseChar(t.Text)
		if err != "" {
			s.fail(t, "%s", err)
		}
		return v
	case token.Name:
		return value{}
	case token.OpenParen:
		v := s.comma(eval)
		if c := s.peek(); c.Kind != token.CloseParen {
			s.fail(c, "missing ')' in expression")
			return v
		}
		s.next()
		return v
	case token.EOF:
		s.fail(t, "missing operand in expression")
	default:
		s.fail(t, "token %q is not valid in preprocessor expressions", t.Spelling())
	}
	return value{}
}

// parseNumber reads an integer constant with its u and l suffixes.
func parseNumber(text string) (value, string) {
	hex := len(text) > 1 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X')
	if strings.Contains(text, ".") || !hex && strings.ContainsAny(text, "eE") || hex && strings.ContainsAny(text, "pP") {
		return value{}, "floating constant in preprocessor expression"
	}
	base, start := 10, 0
	switch {
	case hex:
		base, start = 16, 2
	case text[0] == '0':
		base = 8
	}
	end := start
	for end < len(text) && isHex(text[end]) && (base == 16 || text[end] <= '9') {
		end++
	}
	digits, suffix := text[start:end], text[end:]
	switch strings.ToLower(suffix) {
	case "", "u", "l", "ul", "lu", "ll", "ull", "llu":
	default:
		return value{}, fmt.Sprintf("invalid suffix %q on integer constant", suffix)
	}
	n, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return value{n: -1, unsigned: true}, "integer constant is too large for its type"
		}
		return value{}, fmt.Sprintf("invalid integer constant %q", text)
	}
	unsigned := strings.ContainsAny(suffix, "uU") || n > 1<<63-1
	return value{n: int64(n), unsigned: unsigned}, ""
}

// parseChar evaluates a character constant. Multi-character constants
// pack their bytes big-endian, as GCC does.
func parseChar(text string) (value, string) {
	wide := text[0] == 'L'
	if wide {
		text = text[1:]
	}
	body := text[1 : len(text)-1]
	if body == "" {
		return value{}, "empty character constant"
	}
	var n int64
	chars := 0
	for len(body) > 0 {
		c, rest, err := unescape(body)
		if err != "" {
			return value{}, err
		}
		body = rest
		chars++
		if wide {
			n = c
		} else {
			n = n<<8 | c&0xff
		}
	}
	if !wide && chars == 1 {
		// Plain char is signed.
		n = int64(int8(n))
	}
	return value{n: n}, ""
}

func unescape(s string) (int64, string, string) {
	if s[0] != '\\' {
		return int64(s[0]), s[1:], ""
	}
	if len(s) < 2 {
		return 0, "", "invalid escape at end of character constant"
	}
	switch c := s[1]; c {
	case 'n':
		return '\n', s[2:], ""
	case 't':
		return '\t', s[2:], ""
	case 'r':
		return '\r', s[2:], ""
	case 'a':
		return 7, s[2:], ""
	case 'b':
		return '\b', s[2:], ""
	case 'f':
		return '\f', s[2:], ""
	case 'v':
		return '\v', s[2:], ""
	case 'e', 'E':
		return 27, s[2:], ""
	case 'x':
		i := 2
		var n int64
		for i < len(s) && isHex(s[i]) {
			d, _ := strconv.ParseInt(s[i:i+1], 16, 64)
			n = n<<4 | d
			i++
		}
		if i == 2 {
			return 0, "", "\\x used with no following hex digits"
		}
		return n, s[i:], ""
	case '0', '1', '2', '3', '4', '5', '6', '7':
		i := 1
		var n int64
		for i < len(s) && i < 4 && s[i] >= '0' && s[i] <= '7' {
			n = n<<3 | int64(s[i]-'0')
			i++
		}
		return n, s[i:], ""
	default:
		return int64(c), s[2:], ""
	}
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
