package protocol

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// DefaultEncoding is used when no text encoding is configured.
const DefaultEncoding = "utf-8"

// Encoding converts between Go strings and the bytes put on the wire.
type Encoding struct {
	name string
	enc  encoding.Encoding
}

// UTF8 is the default encoding.
var UTF8 = Encoding{name: "UTF-8", enc: unicode.UTF8}

// LookupEncoding resolves an IANA charset name ("utf-8", "utf-16le",
// "iso-8859-1", "windows-1252", ...). An empty name selects UTF-8.
func LookupEncoding(name string) (Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return UTF8, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return Encoding{}, fmt.Errorf("protocol: unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return Encoding{}, fmt.Errorf("protocol: encoding %q is not supported", name)
	}
	canonical, err := ianaindex.IANA.Name(enc)
	if err != nil {
		canonical = name
	}
	return Encoding{name: canonical, enc: enc}, nil
}

// Name returns the canonical IANA name.
func (e Encoding) Name() string {
	if e.enc == nil {
		return UTF8.name
	}
	return e.name
}

// Encode converts text to wire bytes. Characters the encoding cannot
// represent are an error, never silently substituted.
func (e Encoding) Encode(text string) ([]byte, error) {
	if e.enc == nil {
		e = UTF8
	}
	out, err := e.enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("protocol: encode as %s: %w", e.Name(), err)
	}
	return out, nil
}

// Decode converts wire bytes back to text. Invalid input is an error, so
// callers can tell binary chunks from text.
func (e Encoding) Decode(b []byte) (string, error) {
	if e.enc == nil || e.enc == unicode.UTF8 {
		if !utf8.Valid(b) {
			return "", fmt.Errorf("protocol: decode as %s: invalid byte sequence", UTF8.name)
		}
		return string(b), nil
	}
	out, err := e.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("protocol: decode as %s: %w", e.Name(), err)
	}
	return string(out), nil
}
