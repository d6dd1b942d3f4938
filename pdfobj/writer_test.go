package pdfobj

import (
	"bytes"
	"compress/zlib"
	"io"
	"testing"

	"github.com/digitorus/pdf"
)

// minimalPDF is a hand-built three-object PDF with a classic xref table,
// used to exercise the incremental-update writer without depending on any
// external test fixture file.
const minimalPDF = "%PDF-1.4\n" +
	"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
	"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n" +
	"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n" +
	"xref\r\n0 4\r\n" +
	"0000000000 65535 f\r\n" +
	"0000000009 00000 n\r\n" +
	"0000000058 00000 n\r\n" +
	"0000000115 00000 n\r\n" +
	"trailer\n<< /Size 4 /Root 1 0 R /ID [<00112233445566778899aabbccddeeff><00112233445566778899aabbccddeeff>] >>\n" +
	"startxref\n186\n%%EOF\n"

func openFixture(t *testing.T) (*pdf.Reader, *bytes.Reader) {
	t.Helper()
	src := bytes.NewReader([]byte(minimalPDF))
	r, err := pdf.NewReader(src, int64(len(minimalPDF)))
	if err != nil {
		t.Fatalf("pdf.NewReader: %v", err)
	}
	return r, src
}

func TestWriterAppendsObjectAndReopens(t *testing.T) {
	r, src := openFixture(t)

	w, err := NewWriter(r, src, int64(len(minimalPDF)))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	id, err := w.AddObject([]byte("<< /Type /Example >>"))
	if err != nil {
		t.Fatalf("AddObject: %v", err)
	}
	if id != 4 {
		t.Errorf("AddObject id = %d, want 4", id)
	}

	out, err := w.Finish(1)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	out2 := append([]byte{}, out...)
	r2, err := pdf.NewReader(bytes.NewReader(out2), int64(len(out2)))
	if err != nil {
		t.Fatalf("reopening written PDF: %v", err)
	}
	val := r2.Trailer().Key("Root")
	if val.Key("Type").Name() != "Catalog" {
		t.Errorf("Root/Type = %q, want Catalog", val.Key("Type").Name())
	}
}

func TestWriterUpdateObjectAddsRevision(t *testing.T) {
	r, src := openFixture(t)

	w, err := NewWriter(r, src, int64(len(minimalPDF)))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if err := w.UpdateObject(1, []byte("<< /Type /Catalog /Pages 2 0 R /Extra true >>")); err != nil {
		t.Fatalf("UpdateObject: %v", err)
	}

	out, err := w.Finish(1)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	r2, err := pdf.NewReader(bytes.NewReader(out), int64(len(out)))
	if err != nil {
		t.Fatalf("reopening updated PDF: %v", err)
	}
	if !r2.Trailer().Key("Root").Key("Extra").Bool() {
		t.Error("expected the updated Catalog revision to be visible")
	}
}

func TestEncodePNGPredictorsRejectShortRows(t *testing.T) {
	if _, err := EncodePNGSub(6, []byte{1, 2, 3}); err == nil {
		t.Error("expected an error for data not a multiple of the column width")
	}
	if _, err := EncodePNGUp(6, []byte{1, 2, 3}); err == nil {
		t.Error("expected an error for data not a multiple of the column width")
	}
}

func TestEncodePNGSubRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte{1, 2, 3, 4, 5, 6}, 3)
	encoded, err := EncodePNGSub(6, data)
	if err != nil {
		t.Fatalf("EncodePNGSub: %v", err)
	}
	if len(encoded) == 0 {
		t.Error("expected non-empty encoded output")
	}

	zr, err := zlib.NewReader(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("zlib.NewReader: %v", err)
	}
	filtered, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	var decoded []byte
	for i := 0; i+7 <= len(filtered); i += 7 {
		if filtered[i] != 1 {
			t.Fatalf("row %d filter type = %d, want 1 (Sub)", i/7, filtered[i])
		}
		var prev byte
		for _, b := range filtered[i+1 : i+7] {
			prev += b
			decoded = append(decoded, prev)
		}
	}
	if !bytes.Equal(decoded, data) {
		t.Errorf("decoded = %v, want %v", decoded, data)
	}
}
