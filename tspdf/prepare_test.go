package tspdf

import (
	"bytes"
	"testing"
	"time"

	"github.com/digitorus/pdf"
)

// minimalPDF mirrors pdfobj's fixture: a hand-built three-object PDF with a
// classic xref table and a single page, reachable via Root -> Pages -> Kids[0].
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

func fixedNow() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func TestPrepareByteRangeSkipsExactlyThePlaceholder(t *testing.T) {
	prepared, err := Prepare([]byte(minimalPDF), Options{SignatureSize: 16, Now: fixedNow})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	br := prepared.ByteRange
	if br[0] != 0 {
		t.Errorf("ByteRange[0] = %d, want 0", br[0])
	}
	if br[1] != int64(prepared.ContentsOffset)-1 {
		t.Errorf("ByteRange[1] = %d, want %d", br[1], prepared.ContentsOffset-1)
	}
	gap := prepared.Bytes[br[0]+br[1] : br[2]]
	if !bytes.Equal(bytes.Trim(gap, "0"), []byte("<>")) {
		t.Errorf("gap between ranges = %q, want just the placeholder's angle brackets around zeros", gap)
	}
	if br[2]+br[3] != int64(len(prepared.Bytes)) {
		t.Errorf("ByteRange[2]+[3] = %d, want %d (end of buffer)", br[2]+br[3], len(prepared.Bytes))
	}

	window := prepared.Bytes[prepared.ContentsOffset : prepared.ContentsOffset+prepared.PlaceholderLen]
	if !bytes.Equal(window, bytes.Repeat([]byte("0"), prepared.PlaceholderLen)) {
		t.Errorf("Contents placeholder window is not all zero: %q", window)
	}
}

func TestPrepareReopensAsValidPDF(t *testing.T) {
	prepared, err := Prepare([]byte(minimalPDF), Options{Now: fixedNow})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	r, err := pdf.NewReader(bytes.NewReader(prepared.Bytes), int64(len(prepared.Bytes)))
	if err != nil {
		t.Fatalf("reopening prepared PDF: %v", err)
	}
	root := r.Trailer().Key("Root")
	if root.Key("Type").Name() != "Catalog" {
		t.Fatalf("Root/Type = %q, want Catalog", root.Key("Type").Name())
	}
	fields := root.Key("AcroForm").Key("Fields")
	if fields.Len() != 1 {
		t.Fatalf("AcroForm/Fields has %d entries, want 1", fields.Len())
	}
	sigField := fields.Index(0)
	if sigField.Key("T").RawString() != defaultFieldName {
		t.Errorf("field /T = %q, want %q", sigField.Key("T").RawString(), defaultFieldName)
	}
	v := sigField.Key("V")
	if v.Key("Type").Name() != "DocTimeStamp" {
		t.Errorf("V/Type = %q, want DocTimeStamp", v.Key("Type").Name())
	}
	if v.Key("SubFilter").Name() != "ETSI.RFC3161" {
		t.Errorf("V/SubFilter = %q, want ETSI.RFC3161", v.Key("SubFilter").Name())
	}
}

func TestPrepareDocumentHashMatchesRangeBytes(t *testing.T) {
	prepared, err := Prepare([]byte(minimalPDF), Options{Alg: 0, Now: fixedNow})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	want := prepared.Alg.New()
	want.Write(prepared.RangeBytes())
	if !bytes.Equal(prepared.DocumentHash, want.Sum(nil)) {
		t.Error("DocumentHash does not match a fresh hash over RangeBytes()")
	}
}

func TestPrepareUniqueFieldNamesAcrossRounds(t *testing.T) {
	first, err := Prepare([]byte(minimalPDF), Options{FieldName: "Timestamp1", Now: fixedNow})
	if err != nil {
		t.Fatalf("Prepare round 1: %v", err)
	}
	second, err := Prepare(first.Bytes, Options{FieldName: "Timestamp2", Now: fixedNow})
	if err != nil {
		t.Fatalf("Prepare round 2: %v", err)
	}

	r, err := pdf.NewReader(bytes.NewReader(second.Bytes), int64(len(second.Bytes)))
	if err != nil {
		t.Fatalf("reopening second round: %v", err)
	}
	fields := r.Trailer().Key("Root").Key("AcroForm").Key("Fields")
	if fields.Len() != 2 {
		t.Fatalf("AcroForm/Fields has %d entries, want 2", fields.Len())
	}
	names := map[string]bool{}
	for i := 0; i < fields.Len(); i++ {
		names[fields.Index(i).Key("T").RawString()] = true
	}
	if !names["Timestamp1"] || !names["Timestamp2"] {
		t.Errorf("expected both Timestamp1 and Timestamp2 fields, got %v", names)
	}
}
