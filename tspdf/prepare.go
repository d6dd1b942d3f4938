package tspdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/digitorus/pdf"

	"github.com/mingulov/pdftsa/errs"
	"github.com/mingulov/pdftsa/pdfobj"
)

// byteRangePlaceholder mirrors the teacher's fixed-width placeholder
// string (sign/pdfsignature.go's signatureByteRangePlaceholder) so the
// four decimal values can be patched in place without shifting any other
// byte in the revision.
const byteRangePlaceholder = "/ByteRange[0 ********** ********** **********]"

// Prepare builds a PreparedPdf: one incremental update containing an
// invisible signature widget whose /V is a DocTimeStamp dictionary with an
// all-zero /Contents placeholder and a patched-in /ByteRange, per spec
// §4.E. Grounded on sign.SignContext's addSignatureObject /
// handleVisualSignature / addCatalog / finalizePDFStructure sequence,
// generalized to the TimeStampSignature-only path and built on pdfobj.Writer
// instead of SignContext's own xref bookkeeping.
func Prepare(input []byte, opts Options) (*PreparedPdf, error) {
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

	page, pageObjID, err := findPageByNumber(root.Key("Pages"), 1)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidPDF, "failed to locate page 1", err)
	}

	placeholderLen := 2 * int(opts.signatureSize())

	sigDict := buildTimestampDict(placeholderLen, opts.now())
	sigObjID, err := w.AddObject(sigDict)
	if err != nil {
		return nil, err
	}

	widgetObjID := w.NextObjectID()
	widgetDict := buildWidgetDict(opts.fieldName(), sigObjID, pageObjID)
	if _, err := w.AddObject(widgetDict); err != nil {
		return nil, err
	}

	pageUpdate, err := buildPageAnnotsUpdate(page, widgetObjID)
	if err != nil {
		return nil, err
	}
	if err := w.UpdateObject(pageObjID, pageUpdate); err != nil {
		return nil, err
	}

	existingFields := existingSignatureFieldIDs(root)
	catalogDict := buildCatalogDict(root, rootPtr.GetID(), append(existingFields, widgetObjID))
	if err := w.UpdateObject(rootPtr.GetID(), catalogDict); err != nil {
		return nil, err
	}

	out, err := w.Finish(rootPtr.GetID())
	if err != nil {
		return nil, err
	}

	contentsOffset, err := locatePlaceholder(out, placeholderLen)
	if err != nil {
		return nil, err
	}
	byteRange, err := patchByteRange(out, contentsOffset, placeholderLen)
	if err != nil {
		return nil, err
	}

	prepared := &PreparedPdf{
		Bytes:             out,
		RootObjectID:      rootPtr.GetID(),
		SignatureObjectID: sigObjID,
		FieldName:         opts.fieldName(),
		ByteRange:         byteRange,
		ContentsOffset:    contentsOffset,
		PlaceholderLen:    placeholderLen,
		Alg:               opts.Alg,
	}
	hasher := prepared.Alg.New()
	hasher.Write(prepared.RangeBytes())
	prepared.DocumentHash = hasher.Sum(nil)

	return prepared, nil
}

func buildTimestampDict(placeholderLen int, signTime time.Time) []byte {
	var b bytes.Buffer
	b.WriteString("<<\n")
	b.WriteString(" /Type /DocTimeStamp\n")
	b.WriteString(" /Filter /Adobe.PPKLite\n")
	b.WriteString(" /SubFilter /ETSI.RFC3161\n")
	b.WriteString(" /M " + pdfDateTime(signTime) + "\n")
	b.WriteString(" " + byteRangePlaceholder + "\n")
	b.WriteString(" /Contents<")
	b.Write(bytes.Repeat([]byte("0"), placeholderLen))
	b.WriteString(">\n")
	b.WriteString(">>\n")
	return b.Bytes()
}

// buildWidgetDict creates the invisible, zero-area signature widget
// annotation, per spec §4.E step 2 ("invisible, zero-area rect").
func buildWidgetDict(fieldName string, sigObjID, pageObjID uint32) []byte {
	var b bytes.Buffer
	b.WriteString("<<\n")
	b.WriteString("  /Type /Annot\n")
	b.WriteString("  /Subtype /Widget\n")
	b.WriteString("  /Rect [0 0 0 0]\n")
	b.WriteString("  /F 132\n") // Print | Locked, never rendered (zero-area rect)
	b.WriteString("  /FT /Sig\n")
	fmt.Fprintf(&b, "  /T %s\n", pdfString(fieldName))
	fmt.Fprintf(&b, "  /P %d 0 R\n", pageObjID)
	fmt.Fprintf(&b, "  /V %d 0 R\n", sigObjID)
	b.WriteString(">>\n")
	return b.Bytes()
}

// buildPageAnnotsUpdate reissues page's dictionary with the new widget
// appended to /Annots, grounded on sign/pdfvisualsignature.go's
// createIncPageUpdate.
func buildPageAnnotsUpdate(page pdf.Value, widgetObjID uint32) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString("<<\n")
	for _, key := range page.Keys() {
		switch key {
		case "Parent":
			ptr := page.Key(key).GetPtr()
			fmt.Fprintf(&b, "  /%s %d 0 R\n", key, ptr.GetID())
		case "Contents":
			v := page.Key(key)
			if v.Kind() == pdf.Array {
				b.WriteString("  /Contents [")
				for i := 0; i < v.Len(); i++ {
					ptr := v.Index(i).GetPtr()
					fmt.Fprintf(&b, " %d 0 R", ptr.GetID())
				}
				b.WriteString(" ]\n")
			} else {
				ptr := v.GetPtr()
				fmt.Fprintf(&b, "  /%s %d 0 R\n", key, ptr.GetID())
			}
		case "Annots":
			b.WriteString("  /Annots [\n")
			annots := page.Key("Annots")
			for i := 0; i < annots.Len(); i++ {
				ptr := annots.Index(i).GetPtr()
				fmt.Fprintf(&b, "    %d 0 R\n", ptr.GetID())
			}
			fmt.Fprintf(&b, "    %d 0 R\n", widgetObjID)
			b.WriteString("  ]\n")
		default:
			fmt.Fprintf(&b, "  /%s %s\n", key, page.Key(key).String())
		}
	}
	if page.Key("Annots").IsNull() {
		fmt.Fprintf(&b, "  /Annots [%d 0 R]\n", widgetObjID)
	}
	b.WriteString(">>\n")
	return b.Bytes(), nil
}

// existingSignatureFieldIDs enumerates the AcroForm's existing signature
// field object IDs, grounded on sign/pdfsignature.go's fetchExistingSignatures.
func existingSignatureFieldIDs(root pdf.Value) []uint32 {
	var ids []uint32
	acroForm := root.Key("AcroForm")
	if acroForm.IsNull() {
		return ids
	}
	fields := acroForm.Key("Fields")
	if fields.IsNull() {
		return ids
	}
	for i := 0; i < fields.Len(); i++ {
		field := fields.Index(i)
		if field.Key("FT").Name() == "Sig" {
			ids = append(ids, field.GetPtr().GetID())
		}
	}
	return ids
}

// buildCatalogDict reissues the Catalog with an AcroForm referencing
// fieldObjIDs and every other root key copied through unchanged, grounded
// on sign/pdfcatalog.go's createCatalog/serializeCatalogEntry.
func buildCatalogDict(root pdf.Value, rootObjID uint32, fieldObjIDs []uint32) []byte {
	var b bytes.Buffer
	b.WriteString("<<\n")
	b.WriteString("  /Type /Catalog\n")
	overwritten := map[string]bool{"Type": true, "AcroForm": true}

	if pages := root.Key("Pages"); !pages.IsNull() {
		ptr := pages.GetPtr()
		fmt.Fprintf(&b, "  /Pages %d 0 R\n", ptr.GetID())
		overwritten["Pages"] = true
	}
	if names := root.Key("Names"); !names.IsNull() {
		ptr := names.GetPtr()
		fmt.Fprintf(&b, "  /Names %d 0 R\n", ptr.GetID())
		overwritten["Names"] = true
	}

	b.WriteString("  /AcroForm <<\n")
	b.WriteString("    /Fields [")
	for i, id := range fieldObjIDs {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%d 0 R", id)
	}
	b.WriteString("]\n")
	b.WriteString("    /SigFlags 3\n")
	b.WriteString("  >>\n")

	for _, key := range root.Keys() {
		if overwritten[key] {
			continue
		}
		fmt.Fprintf(&b, "/%s ", key)
		pdfobj.SerializeValue(&b, rootObjID, root.Key(key))
	}
	b.WriteString(">>\n")
	return b.Bytes()
}

// findPageByNumber locates the nth page (1-indexed) in the page tree and
// returns it along with its object ID, grounded on
// sign/pdfvisualsignature.go's findPageByNumber/findPageByNumberRec.
func findPageByNumber(pages pdf.Value, pageNumber uint32) (pdf.Value, uint32, error) {
	page, remaining, err := findPageByNumberRec(pages, pageNumber)
	if err != nil {
		return pdf.Value{}, 0, err
	}
	if remaining != 0 {
		return pdf.Value{}, 0, fmt.Errorf("page number %d not found", pageNumber)
	}
	return page, page.GetPtr().GetID(), nil
}

func findPageByNumberRec(pages pdf.Value, pageNumber uint32) (pdf.Value, uint32, error) {
	switch pages.Key("Type").Name() {
	case "Pages":
		kids := pages.Key("Kids")
		for i := 0; i < kids.Len(); i++ {
			page, remaining, err := findPageByNumberRec(kids.Index(i), pageNumber)
			if err == nil && remaining == 0 {
				return page, 0, nil
			}
			pageNumber = remaining
		}
		return pdf.Value{}, pageNumber, fmt.Errorf("page number %d not found", pageNumber)
	case "Page":
		if pageNumber == 1 {
			return pages, 0, nil
		}
		return pdf.Value{}, pageNumber - 1, nil
	default:
		return pdf.Value{}, pageNumber, fmt.Errorf("page number %d not found", pageNumber)
	}
}

// locatePlaceholder returns the byte offset of the placeholder's first hex
// digit (just past the opening '<').
func locatePlaceholder(buf []byte, placeholderLen int) (int, error) {
	prefix := []byte("/Contents<")
	marker := append(append(prefix, bytes.Repeat([]byte("0"), placeholderLen)...), '>')
	idx := bytes.Index(buf, marker)
	if idx == -1 {
		return 0, errs.New(errs.InvalidPDF, "failed to locate Contents placeholder")
	}
	return idx + len(prefix), nil
}

// patchByteRange computes and writes the four ByteRange integers in place,
// grounded on sign/pdfbyterange.go's updateByteRange.
func patchByteRange(buf []byte, contentsOffset, placeholderLen int) ([4]int64, error) {
	offset1 := int64(0)
	length1 := int64(contentsOffset) - 1 // up to, not including, the '<'
	offset2 := int64(contentsOffset + placeholderLen + 1)
	length2 := int64(len(buf)) - offset2 // from just after the '>' to EOF

	byteRange := [4]int64{offset1, length1, offset2, length2}

	newByteRange := fmt.Sprintf("/ByteRange[%d %d %d %d]", byteRange[0], byteRange[1], byteRange[2], byteRange[3])
	if len(newByteRange) > len(byteRangePlaceholder) {
		return [4]int64{}, errs.New(errs.InvalidPDF, "ByteRange values too large for placeholder width")
	}
	newByteRange += strings.Repeat(" ", len(byteRangePlaceholder)-len(newByteRange))

	idx := bytes.Index(buf, []byte(byteRangePlaceholder))
	if idx == -1 {
		return [4]int64{}, errs.New(errs.InvalidPDF, "failed to locate ByteRange placeholder")
	}
	copy(buf[idx:idx+len(newByteRange)], []byte(newByteRange))

	return byteRange, nil
}

