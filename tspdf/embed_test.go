package tspdf

import (
	"bytes"
	"testing"

	"github.com/mingulov/pdftsa/errs"
)

func preparedForEmbed(t *testing.T, signatureSize uint32) *PreparedPdf {
	t.Helper()
	prepared, err := Prepare([]byte(minimalPDF), Options{SignatureSize: signatureSize, Now: fixedNow})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return prepared
}

func TestEmbedAcceptsExactFit(t *testing.T) {
	prepared := preparedForEmbed(t, 4)
	token := bytes.Repeat([]byte{0xAB}, 4) // hex-encodes to exactly PlaceholderLen (8) digits

	out, err := Embed(prepared, token)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	window := out[prepared.ContentsOffset : prepared.ContentsOffset+prepared.PlaceholderLen]
	if string(window) != "abababab" {
		t.Errorf("Contents window = %q, want %q", window, "abababab")
	}
}

func TestEmbedRejectsOneByteOverflow(t *testing.T) {
	prepared := preparedForEmbed(t, 4)
	token := bytes.Repeat([]byte{0xAB}, 5) // hex-encodes to 10 digits, one byte (two digits) more than PlaceholderLen (8)

	_, err := Embed(prepared, token)
	if !errs.As(err, errs.PlaceholderOverflow) {
		t.Fatalf("Embed error = %v, want PLACEHOLDER_OVERFLOW", err)
	}
}

func TestEmbedPadsShortTokenWithZeros(t *testing.T) {
	prepared := preparedForEmbed(t, 8)
	token := bytes.Repeat([]byte{0xCD}, 4) // hex-encodes to 8 digits, half of PlaceholderLen (16)

	out, err := Embed(prepared, token)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	window := out[prepared.ContentsOffset : prepared.ContentsOffset+prepared.PlaceholderLen]
	if string(window) != "cdcdcdcd00000000" {
		t.Errorf("Contents window = %q, want %q", window, "cdcdcdcd00000000")
	}
}

func TestEmbedNeverShiftsBytesOutsideTheWindow(t *testing.T) {
	prepared := preparedForEmbed(t, 8)
	token := bytes.Repeat([]byte{0x11}, 8)

	out, err := Embed(prepared, token)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(out) != len(prepared.Bytes) {
		t.Fatalf("Embed changed the buffer length: %d, want %d", len(out), len(prepared.Bytes))
	}
	if !bytes.Equal(out[:prepared.ContentsOffset], prepared.Bytes[:prepared.ContentsOffset]) {
		t.Error("bytes before the Contents window were modified")
	}
	tail := prepared.ContentsOffset + prepared.PlaceholderLen
	if !bytes.Equal(out[tail:], prepared.Bytes[tail:]) {
		t.Error("bytes after the Contents window were modified")
	}
}
