package ltv

import (
	"bytes"
	"sort"
	"strings"
	"testing"

	"github.com/digitorus/pdf"
)

// minimalPDF mirrors tspdf's own fixture: a hand-built three-object PDF with
// a classic xref table and a single page.
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

func TestWriteDSSNoopWhenNothingToAdd(t *testing.T) {
	out, err := WriteDSS([]byte(minimalPDF), LTVData{}, nil)
	if err != nil {
		t.Fatalf("WriteDSS: %v", err)
	}
	if !bytes.Equal(out, []byte(minimalPDF)) {
		t.Error("WriteDSS with no material and no VRI must return the input unchanged")
	}
}

func TestWriteDSSAppendsIncrementalUpdate(t *testing.T) {
	data := LTVData{
		Certs: [][]byte{{0x01}, {0x02}, {0x03}},
		CRLs:  [][]byte{{0x10}},
	}
	out, err := WriteDSS([]byte(minimalPDF), data, nil)
	if err != nil {
		t.Fatalf("WriteDSS: %v", err)
	}
	if len(out) <= len(minimalPDF) {
		t.Fatalf("output length %d, want strictly longer than input (%d)", len(out), len(minimalPDF))
	}
	if !bytes.Equal(out[:len(minimalPDF)], []byte(minimalPDF)) {
		t.Error("WriteDSS must preserve the original bytes verbatim (incremental update)")
	}

	r, err := pdf.NewReader(bytes.NewReader(out), int64(len(out)))
	if err != nil {
		t.Fatalf("reopening output PDF: %v", err)
	}
	dss := r.Trailer().Key("Root").Key("DSS")
	if dss.Key("Certs").Len() != 3 {
		t.Errorf("DSS/Certs len = %d, want 3", dss.Key("Certs").Len())
	}
	if dss.Key("CRLs").Len() != 1 {
		t.Errorf("DSS/CRLs len = %d, want 1", dss.Key("CRLs").Len())
	}
	if dss.Key("OCSPs").Kind() != pdf.Null {
		t.Errorf("DSS/OCSPs must be absent when there are no OCSP responses, got kind %v", dss.Key("OCSPs").Kind())
	}
	if dss.Key("VRI").Kind() != pdf.Null {
		t.Error("DSS/VRI must be absent when no VRI map was supplied")
	}
}

func TestWriteDSSPreservesOtherCatalogKeys(t *testing.T) {
	out, err := WriteDSS([]byte(minimalPDF), LTVData{Certs: [][]byte{{0xAA}}}, nil)
	if err != nil {
		t.Fatalf("WriteDSS: %v", err)
	}
	r, err := pdf.NewReader(bytes.NewReader(out), int64(len(out)))
	if err != nil {
		t.Fatalf("reopening output PDF: %v", err)
	}
	root := r.Trailer().Key("Root")
	if root.Key("Pages").Key("Count").Int64() != 1 {
		t.Error("reissued Catalog lost its original /Pages reference")
	}
}

func TestWriteDSSVRIKeysAreSortedAndScopedPerSignature(t *testing.T) {
	vri := map[string]LTVData{
		"FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF": {Certs: [][]byte{{0x01}}},
		"0000000000000000000000000000000000000000": {OCSPs: [][]byte{{0x02}}},
		"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA": {CRLs: [][]byte{{0x03}}},
	}
	out, err := WriteDSS([]byte(minimalPDF), LTVData{}, vri)
	if err != nil {
		t.Fatalf("WriteDSS: %v", err)
	}

	r, err := pdf.NewReader(bytes.NewReader(out), int64(len(out)))
	if err != nil {
		t.Fatalf("reopening output PDF: %v", err)
	}
	vriDict := r.Trailer().Key("Root").Key("DSS").Key("VRI")

	var wantKeys []string
	for k := range vri {
		wantKeys = append(wantKeys, k)
	}
	sort.Strings(wantKeys)

	keys := vriDict.Keys()
	if len(keys) != len(wantKeys) {
		t.Fatalf("VRI has %d keys, want %d", len(keys), len(wantKeys))
	}
	for i, k := range keys {
		if k != wantKeys[i] {
			t.Errorf("VRI key[%d] = %q, want %q (sorted order)", i, k, wantKeys[i])
		}
	}

	ffEntry := vriDict.Key("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF")
	if ffEntry.Key("Cert").Len() != 1 {
		t.Error("VRI entry for the cert-bearing key lost its /Cert array")
	}
	if ffEntry.Key("CRL").Kind() != pdf.Null {
		t.Error("VRI entries must not cross-contaminate fields from other signatures")
	}
}

func TestSHA1HexIsUppercase(t *testing.T) {
	got := SHA1Hex([]byte("hello"))
	if got != strings.ToUpper(got) {
		t.Errorf("SHA1Hex(%q) = %q, not uppercase", "hello", got)
	}
	if len(got) != 40 {
		t.Errorf("SHA1Hex length = %d, want 40 (hex of a 20-byte digest)", len(got))
	}
}
