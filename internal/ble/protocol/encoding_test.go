package protocol

import (
	"bytes"
	"testing"
)

func TestLookupEncodingDefault(t *testing.T) {
	enc, err := LookupEncoding("")
	if err != nil {
		t.Fatalf("LookupEncoding(\"\") error = %v", err)
	}
	if enc.Name() != "UTF-8" {
		t.Errorf("Name() = %q, want UTF-8", enc.Name())
	}
}

func TestLookupEncodingUnknown(t *testing.T) {
	if _, err := LookupEncoding("klingon-8"); err == nil {
		t.Error("LookupEncoding should fail for an unknown name")
	}
}

func TestEncodeLatin1(t *testing.T) {
	enc, err := LookupEncoding("iso-8859-1")
	if err != nil {
		t.Fatalf("LookupEncoding() error = %v", err)
	}
	got, err := enc.Encode("café")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if want := []byte{'c', 'a', 'f', 0xe9}; !bytes.Equal(got, want) {
		t.Errorf("Encode(café) = %x, want %x", got, want)
	}
	back, err := enc.Decode(got)
	if err != nil || back != "café" {
		t.Errorf("Decode() = %q, %v", back, err)
	}
}

func TestEncodeUnrepresentableFails(t *testing.T) {
	enc, err := LookupEncoding("iso-8859-1")
	if err != nil {
		t.Fatalf("LookupEncoding() error = %v", err)
	}
	if _, err := enc.Encode("日本"); err == nil {
		t.Error("Encode should fail for characters outside Latin-1")
	}
}

func TestDecodeInvalidUTF8(t *testing.T) {
	if _, err := UTF8.Decode([]byte{0xff, 0xfe}); err == nil {
		t.Error("Decode should reject invalid UTF-8")
	}
	s, err := UTF8.Decode([]byte("ok"))
	if err != nil || s != "ok" {
		t.Errorf("Decode(ok) = %q, %v", s, err)
	}
}

func TestZeroEncodingIsUTF8(t *testing.T) {
	var enc Encoding
	got, err := enc.Encode("BOM")
	if err != nil || string(got) != "BOM" {
		t.Errorf("zero Encoding Encode = %q, %v", got, err)
	}
}
