// Package snapshot saves and restores the user macros of a table.
//
// A snapshot is a fixed preamble, a canonical CBOR body and the BLAKE2b-256
// digest of that body:
//
//	magic "CPPM" | version u16 | reserved u16 | body length u32 | body | digest
//
// Canonical encoding makes the bytes stable for equal tables, so the
// digest doubles as a fingerprint of the macro state.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/fwessels/cpp/internal/macro"
	"github.com/fwessels/cpp/internal/token"
)

const (
	Magic   = "CPPM"
	Version = 1

	preambleLen = 12
	maxBodyLen  = 64 << 20
)

var (
	ErrFormat = errors.New("not a macro snapshot")
	ErrDigest = errors.New("snapshot digest mismatch")
)

type tokenRecord struct {
	Kind  uint8  `cbor:"1,keyasint"`
	Flags uint8  `cbor:"2,keyasint,omitempty"`
	Text  string `cbor:"3,keyasint,omitempty"`
	Arg   int    `cbor:"4,keyasint,omitempty"`
}

type macroRecord struct {
	Name        string        `cbor:"1,keyasint"`
	Params      []string      `cbor:"2,keyasint,omitempty"`
	Fun         bool          `cbor:"3,keyasint,omitempty"`
	Variadic    bool          `cbor:"4,keyasint,omitempty"`
	Traditional bool          `cbor:"5,keyasint,omitempty"`
	Text        string        `cbor:"6,keyasint,omitempty"`
	System      bool          `cbor:"7,keyasint,omitempty"`
	Tokens      []tokenRecord `cbor:"8,keyasint,omitempty"`
}

type body struct {
	Macros []macroRecord `cbor:"1,keyasint"`
}

func encode(t *macro.Table) ([]byte, error) {
	var b body
	for _, m := range t.All() {
		if m.Builtin != macro.NotBuiltin {
			continue
		}
		r := macroRecord{
			Name:        m.Name,
			Params:      m.Params,
			Fun:         m.Fun,
			Variadic:    m.Variadic,
			Traditional: m.Traditional,
			Text:        m.Text,
			System:      m.System,
		}
		for _, tok := range m.Tokens {
			r.Tokens = append(r.Tokens, tokenRecord{Kind: uint8(tok.Kind), Flags: uint8(tok.Flags), Text: tok.Text, Arg: tok.Arg})
		}
		b.Macros = append(b.Macros, r)
	}
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	data, err := em.Marshal(&b)
	if err != nil {
		return nil, fmt.Errorf("encode macros: %w", err)
	}
	return data, nil
}

// Digest fingerprints the user macros of t.
func Digest(t *macro.Table) ([32]byte, error) {
	data, err := encode(t)
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(data), nil
}

// Save writes the user macros of t to w.
func Save(w io.Writer, t *macro.Table) error {
	data, err := encode(t)
	if err != nil {
		return err
	}
	var pre [preambleLen]byte
	copy(pre[:4], Magic)
	binary.LittleEndian.PutUint16(pre[4:6], Version)
	binary.LittleEndian.PutUint32(pre[8:12], uint32(len(data)))
	sum := blake2b.Sum256(data)

	for _, part := range [][]byte{pre[:], data, sum[:]} {
		if _, err := w.Write(part); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}
	return nil
}

// Load reads a snapshot and defines its macros in t, subject to t's
// redefinition policy. It returns how many macros the snapshot held.
func Load(r io.Reader, t *macro.Table) (int, error) {
	var pre [preambleLen]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return 0, fmt.Errorf("read preamble: %w", err)
	}
	if string(pre[:4]) != Magic {
		return 0, fmt.Errorf("%w: magic %q", ErrFormat, pre[:4])
	}
	if v := binary.LittleEndian.Uint16(pre[4:6]); v != Version {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrFormat, v)
	}
	n := binary.LittleEndian.Uint32(pre[8:12])
	if n > maxBodyLen {
		return 0, fmt.Errorf("%w: body length %d exceeds %d", ErrFormat, n, maxBodyLen)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, fmt.Errorf("read body: %w", err)
	}
	var sum [32]byte
	if _, err := io.ReadFull(r, sum[:]); err != nil {
		return 0, fmt.Errorf("read digest: %w", err)
	}
	if got := blake2b.Sum256(data); !bytes.Equal(got[:], sum[:]) {
		return 0, ErrDigest
	}

	var b body
	if err := cbor.Unmarshal(data, &b); err != nil {
		return 0, fmt.Errorf("decode macros: %w", err)
	}
	for _, r := range b.Macros {
		m := &macro.Macro{
			Name:        r.Name,
			Params:      r.Params,
			Fun:         r.Fun,
			Variadic:    r.Variadic,
			Traditional: r.Traditional,
			Text:        r.Text,
			System:      r.System,
		}
		for _, tr := range r.Tokens {
			tok := token.Token{Kind: token.Kind(tr.Kind), Flags: token.Flags(tr.Flags), Text: tr.Text, Arg: tr.Arg}
			if !tok.Kind.Valid() {
				return 0, fmt.Errorf("%w: macro %q holds token kind %d", ErrFormat, m.Name, tr.Kind)
			}
			if tok.Kind == token.MacroArg && (tok.Arg < 0 || tok.Arg >= len(m.Params)) {
				return 0, fmt.Errorf("%w: macro %q refers to parameter %d of %d", ErrFormat, m.Name, tok.Arg, len(m.Params))
			}
			m.Tokens = append(m.Tokens, tok)
		}
		if err := t.Define(m); err != nil {
			return 0, err
		}
	}
	return len(b.Macros), nil
}
