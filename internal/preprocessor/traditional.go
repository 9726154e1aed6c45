package preprocessor

import (
	"strings"

	"github.com/fwessels/cpp/internal/macro"
	"github.com/fwessels/cpp/internal/token"
)

// tradExpansion produces the replacement text of a traditional macro.
// Arguments are substituted textually, inside string literals too, and
// comments are dropped afterwards so that a comment between two pieces
// pastes them.
func (r *Reader) tradExpansion(m *macro.Macro, args []macroArg) []byte {
	if !m.Fun || len(m.Params) == 0 {
		return stripComments(m.Text)
	}
	repl := make(map[string]string, len(m.Params))
	for i, p := range m.Params {
		repl[p] = spellTokens(args[i].raw())
	}
	return stripComments(replaceIdents(m.Text, repl))
}

func spellTokens(toks []token.Token) string {
	var b strings.Builder
	for i, t := range toks {
		if i > 0 && t.Flags&token.PrevWhite != 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.Spelling())
	}
	return b.String()
}

// replaceIdents replaces every identifier of s found in repl. Comments are
// copied untouched.
func replaceIdents(s string, repl map[string]string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		ch := s[i]
		if ch == '/' && i+1 < len(s) && s[i+1] == '/' {
			b.WriteString(s[i:])
			break
		}
		if ch == '/' && i+1 < len(s) && s[i+1] == '*' {
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				b.WriteString(s[i:])
				break
			}
			b.WriteString(s[i : i+end+4])
			i += end + 4
			continue
		}
		if ch == '\\' && i+1 < len(s) {
			b.WriteString(s[i : i+2])
			i += 2
			continue
		}
		if isIdentStart(ch) {
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			name := s[i:j]
			if val, ok := repl[name]; ok {
				b.WriteString(val)
			} else {
				b.WriteString(name)
			}
			i = j
			continue
		}
		if ch >= '0' && ch <= '9' {
			// pp-numbers such as 0x1f are not identifiers
			j := i + 1
			for j < len(s) && (isIdentPart(s[j]) || s[j] == '.') {
				j++
			}
			b.WriteString(s[i:j])
			i = j
			continue
		}
		b.WriteByte(ch)
		i++
	}
	return b.String()
}

// stripComments deletes comments outside string and character literals.
func stripComments(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == '"' || ch == '\'':
			j := i + 1
			for j < len(s) && s[j] != ch {
				if s[j] == '\\' {
					j++
				}
				j++
			}
			j = min(j+1, len(s))
			out = append(out, s[i:j]...)
			i = j
		case ch == '/' && i+1 < len(s) && s[i+1] == '/':
			return out
		case ch == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return out
			}
			i += end + 4
		default:
			out = append(out, ch)
			i++
		}
	}
	return out
}

func isIdentStart(b byte) bool {
	return b == '_' || b == '$' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}
