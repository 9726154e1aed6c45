// Package charset converts source files from their input character set to
// the UTF-8 the lexer reads.
package charset

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

var (
	ErrUnknown   = errors.New("unknown character set")
	ErrMalformed = errors.New("malformed input")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Converter transcodes one input character set to UTF-8.
type Converter struct {
	name string
	enc  encoding.Encoding // nil for UTF-8
}

// Lookup finds the converter for an IANA charset name. The empty name is
// UTF-8.
func Lookup(name string) (*Converter, error) {
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return &Converter{name: "UTF-8"}, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknown, name)
	}
	if enc == unicode.UTF8 {
		return &Converter{name: "UTF-8"}, nil
	}
	canon, err := ianaindex.IANA.Name(enc)
	if err != nil {
		canon = name
	}
	return &Converter{name: canon, enc: enc}, nil
}

// Name returns the canonical charset name.
func (c *Converter) Name() string { return c.name }

// Identity reports whether Convert leaves valid input untouched.
func (c *Converter) Identity() bool { return c.enc == nil }

// Convert returns src as UTF-8. A leading UTF-8 byte-order mark is dropped.
func (c *Converter) Convert(src []byte) ([]byte, error) {
	if c.enc == nil {
		src = bytes.TrimPrefix(src, utf8BOM)
		if !utf8.Valid(src) {
			return nil, fmt.Errorf("%w for %s", ErrMalformed, c.name)
		}
		return src, nil
	}
	out, err := c.enc.NewDecoder().Bytes(src)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrMalformed, c.name, err)
	}
	// Single-byte tables silently map undefined bytes to U+FFFD; a lossless
	// round trip proves every byte was defined.
	if cm, ok := c.enc.(*charmap.Charmap); ok {
		back, err := cm.NewEncoder().Bytes(out)
		if err != nil || !bytes.Equal(back, src) {
			return nil, fmt.Errorf("%w for %s", ErrMalformed, c.name)
		}
	}
	return bytes.TrimPrefix(out, utf8BOM), nil
}
