package ltv

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/digitorus/pdf"

	"github.com/mingulov/pdftsa/errs"
	"github.com/mingulov/pdftsa/pdfobj"
)

// WriteDSS appends an incremental update adding a Document Security Store:
// stream objects for every unique DER blob in data, a /DSS dictionary
// referencing them, an optional /VRI sub-dictionary keyed by the uppercase
// hex SHA-1 of each signing certificate, and a Catalog revision pointing at
// the new /DSS. A /DSS the Catalog already references is replaced, not
// extended: its entries are not copied into the new one. An all-empty data with an empty vri is a
// no-op — the spec forbids writing an empty DSS.
//
// Grounded on sign/pdfcatalog.go's createCatalog/serializeCatalogEntry for
// the Catalog-splicing technique, generalized from AcroForm to DSS.
func WriteDSS(input []byte, data LTVData, vri map[string]LTVData) ([]byte, error) {
	if data.Empty() && len(vri) == 0 {
		return input, nil
	}

	src := bytes.NewReader(input)
	r, err := pdf.NewReader(src, int64(len(input)))
	if err != nil {
		return nil, errs.Wrap(errs.InvalidPDF, "failed to parse input PDF", err)
	}
	w, err := pdfobj.NewWriter(r, src, int64(len(input)))
	if err != nil {
		return nil, err
	}

	root := r.Trailer().Key("Root")
	rootPtr := root.GetPtr()

	certIDs, err := writeBlobStreams(w, data.Certs)
	if err != nil {
		return nil, err
	}
	crlIDs, err := writeBlobStreams(w, data.CRLs)
	if err != nil {
		return nil, err
	}
	ocspIDs, err := writeBlobStreams(w, data.OCSPs)
	if err != nil {
		return nil, err
	}

	vriObjID := uint32(0)
	if len(vri) > 0 {
		vriDict, err := buildVRIDict(w, vri)
		if err != nil {
			return nil, err
		}
		vriObjID, err = w.AddObject(vriDict)
		if err != nil {
			return nil, err
		}
	}

	dssDict := buildDSSDict(certIDs, crlIDs, ocspIDs, vriObjID)
	dssObjID, err := w.AddObject(dssDict)
	if err != nil {
		return nil, err
	}

	catalogDict := buildCatalogWithDSS(root, rootPtr.GetID(), dssObjID)
	if err := w.UpdateObject(rootPtr.GetID(), catalogDict); err != nil {
		return nil, err
	}

	return w.Finish(rootPtr.GetID())
}

// writeBlobStreams writes each DER blob as its own unfiltered stream object
// and returns the assigned object numbers, in order.
func writeBlobStreams(w *pdfobj.Writer, blobs [][]byte) ([]uint32, error) {
	ids := make([]uint32, 0, len(blobs))
	for _, blob := range blobs {
		id, err := w.AddObject(buildStreamObject(blob))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func buildStreamObject(content []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "<< /Length %d >>\nstream\n", len(content))
	b.Write(content)
	b.WriteString("\nendstream")
	return b.Bytes()
}

func buildDSSDict(certIDs, crlIDs, ocspIDs []uint32, vriObjID uint32) []byte {
	var b bytes.Buffer
	b.WriteString("<<\n")
	writeRefArray(&b, "Certs", certIDs)
	writeRefArray(&b, "CRLs", crlIDs)
	writeRefArray(&b, "OCSPs", ocspIDs)
	if vriObjID != 0 {
		fmt.Fprintf(&b, "  /VRI %d 0 R\n", vriObjID)
	}
	b.WriteString(">>\n")
	return b.Bytes()
}

func writeRefArray(b *bytes.Buffer, key string, ids []uint32) {
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(b, "  /%s [", key)
	for i, id := range ids {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(b, "%d 0 R", id)
	}
	b.WriteString("]\n")
}

// buildVRIDict writes the per-signature validation material and returns the
// composed /VRI dictionary body. Each key is vri's own key (already the
// uppercase hex SHA-1 the caller computed over the signing certificate).
func buildVRIDict(w *pdfobj.Writer, vri map[string]LTVData) ([]byte, error) {
	keys := make([]string, 0, len(vri))
	for key := range vri {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b bytes.Buffer
	b.WriteString("<<\n")
	for _, key := range keys {
		data := vri[key]
		certIDs, err := writeBlobStreams(w, data.Certs)
		if err != nil {
			return nil, err
		}
		crlIDs, err := writeBlobStreams(w, data.CRLs)
		if err != nil {
			return nil, err
		}
		ocspIDs, err := writeBlobStreams(w, data.OCSPs)
		if err != nil {
			return nil, err
		}

		fmt.Fprintf(&b, "  /%s <<\n", key)
		writeRefArray(&b, "Cert", certIDs)
		writeRefArray(&b, "CRL", crlIDs)
		writeRefArray(&b, "OCSP", ocspIDs)
		b.WriteString("  >>\n")
	}
	b.WriteString(">>\n")
	return b.Bytes(), nil
}

// buildCatalogWithDSS reissues the Catalog with a /DSS reference spliced
// in, preserving every other root key exactly as the prior revision had it.
func buildCatalogWithDSS(root pdf.Value, rootObjID, dssObjID uint32) []byte {
	var b bytes.Buffer
	b.WriteString("<<\n")
	b.WriteString("  /Type /Catalog\n")
	fmt.Fprintf(&b, "  /DSS %d 0 R\n", dssObjID)
	overwritten := map[string]bool{"Type": true, "DSS": true}

	for _, key := range root.Keys() {
		if overwritten[key] {
			continue
		}
		fmt.Fprintf(&b, "/%s ", key)
		pdfobj.SerializeValue(&b, rootObjID, root.Key(key))
		b.WriteString("\n")
	}
	b.WriteString(">>\n")
	return b.Bytes()
}

// SHA1Hex returns the uppercase hex SHA-1 digest of der, the VRI key format
// spec §3 mandates.
func SHA1Hex(der []byte) string {
	sum := sha1.Sum(der)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
