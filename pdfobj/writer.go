// Package pdfobj is the low-level incremental-update writer shared by every
// PDF-mutating component of this module that appends a revision
// (placeholder preparation, DSS writing, and archive timestamping; token
// embedding patches the prepared bytes in place without it). It never parses or
// rewrites the body of an existing PDF; it only appends new or updated
// indirect objects and emits a trailing xref section plus trailer that
// chains back to the document's previous revision, the incremental-update
// mechanism described in ISO 32000-1 §7.5.6.
//
// Grounded on the teacher's sign package: Writer plays the role of
// SignContext's buffer/xref bookkeeping (sign/sign.go, sign/pdfxref.go,
// sign/pdfxref_stream.go, sign/pdftrailer.go), generalized from three fixed
// object slots (visual signature, catalog, signature) to an arbitrary
// sequence of objects so it can serve the timestamp, LTV/DSS, and archive
// timestamp components alike.
package pdfobj

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/digitorus/pdf"
	"github.com/mattetti/filebuffer"

	"github.com/mingulov/pdftsa/errs"
)

// PNG predictor tags used by FlateDecode /DecodeParms, ISO 32000-1 Annex F.
const (
	PredictorNone = 1
	PredictorSub  = 11
	PredictorUp   = 12
)

type xrefEntry struct {
	id     uint32
	offset int64
}

// Writer appends new or updated indirect objects to a copy of an existing
// PDF and finalizes the revision with a matching xref section and trailer.
type Writer struct {
	reader *pdf.Reader
	size   int64

	buf *filebuffer.Buffer

	lastObjectID  uint32
	newEntries    []xrefEntry
	updatedEntries []xrefEntry
}

// NewWriter copies the entirety of src (an existing PDF, size bytes long)
// into a fresh in-memory buffer and prepares it to receive appended
// objects. r must be a reader already opened against the same bytes.
func NewWriter(r *pdf.Reader, src io.ReaderAt, size int64) (*Writer, error) {
	buf := filebuffer.New([]byte{})
	if _, err := io.Copy(buf, io.NewSectionReader(src, 0, size)); err != nil {
		return nil, errs.Wrap(errs.InvalidPDF, "failed to copy input PDF", err)
	}
	// Every revision must end with a newline before the next one begins;
	// existing tooling (teacher: sign/sign.go copyInputToOutput) relies on
	// this to avoid %%EOF running into the next object's header.
	if _, err := buf.Write([]byte("\n")); err != nil {
		return nil, errs.Wrap(errs.InvalidPDF, "failed to pad input PDF", err)
	}

	// XrefInformation.ItemCount is the trailer's /Size (object numbers 0
	// through Size-1 already exist); the highest existing object number is
	// therefore Size-1, and AddObject's first increment yields Size.
	lastID := uint32(r.XrefInformation.ItemCount) - 1

	return &Writer{reader: r, size: size, buf: buf, lastObjectID: lastID}, nil
}

// Len returns the number of bytes currently buffered.
func (w *Writer) Len() int64 {
	return int64(len(w.buf.Buff.Bytes()))
}

// Bytes returns the buffered content as built so far (before Finish is
// called, this is the document plus any objects already appended).
func (w *Writer) Bytes() []byte {
	return w.buf.Buff.Bytes()
}

// AddObject appends a brand-new indirect object (content is the dictionary
// or stream body, without the "N 0 obj"/"endobj" wrapper) and returns its
// freshly allocated object number.
func (w *Writer) AddObject(content []byte) (uint32, error) {
	w.lastObjectID++
	id := w.lastObjectID
	offset := w.Len()
	if err := w.writeObject(id, content); err != nil {
		return 0, err
	}
	w.newEntries = append(w.newEntries, xrefEntry{id: id, offset: offset})
	return id, nil
}

// UpdateObject appends a new revision of an object number that already
// exists earlier in the document (e.g. the Catalog, or — on a second
// timestamping pass — the DSS dictionary written by a prior revision).
func (w *Writer) UpdateObject(id uint32, content []byte) error {
	offset := w.Len()
	if err := w.writeObject(id, content); err != nil {
		return err
	}
	w.updatedEntries = append(w.updatedEntries, xrefEntry{id: id, offset: offset})
	return nil
}

func (w *Writer) writeObject(id uint32, content []byte) error {
	if _, err := fmt.Fprintf(w.buf, "%d 0 obj\n", id); err != nil {
		return errs.Wrap(errs.InvalidPDF, "failed to write object header", err)
	}
	if _, err := w.buf.Write(content); err != nil {
		return errs.Wrap(errs.InvalidPDF, "failed to write object body", err)
	}
	if _, err := w.buf.Write([]byte("\nendobj\n")); err != nil {
		return errs.Wrap(errs.InvalidPDF, "failed to write object trailer", err)
	}
	return nil
}

// NextObjectID previews the object number AddObject would hand out next,
// without consuming it — useful when a dictionary needs to reference an
// object that will be added immediately afterward (Prepare takes the
// signature widget's object number this way).
func (w *Writer) NextObjectID() uint32 {
	return w.lastObjectID + 1
}

// Finish writes the xref section (matching the original document's table
// or stream style) and trailer, completing the revision, and returns the
// full output bytes.
func (w *Writer) Finish(rootObjectID uint32) ([]byte, error) {
	xrefStart := w.Len()

	switch w.reader.XrefInformation.Type {
	case "table":
		if err := w.writeXrefTable(); err != nil {
			return nil, err
		}
		if err := w.writeTrailer(rootObjectID, xrefStart); err != nil {
			return nil, err
		}
	case "stream":
		xrefObjectID, err := w.writeXrefStream(rootObjectID)
		if err != nil {
			return nil, err
		}
		_ = xrefObjectID
		if _, err := fmt.Fprintf(w.buf, "startxref\n%d\n%%%%EOF\n", xrefStart); err != nil {
			return nil, errs.Wrap(errs.InvalidPDF, "failed to write startxref", err)
		}
	default:
		return nil, errs.New(errs.InvalidPDF, "unsupported xref type: "+w.reader.XrefInformation.Type)
	}

	return w.Bytes(), nil
}

func (w *Writer) writeXrefTable() error {
	if _, err := w.buf.Write([]byte("xref\n")); err != nil {
		return errs.Wrap(errs.InvalidPDF, "failed to write xref header", err)
	}
	for _, e := range w.updatedEntries {
		if _, err := fmt.Fprintf(w.buf, "%d %d\n%010d 00000 n\r\n", e.id, 1, e.offset); err != nil {
			return errs.Wrap(errs.InvalidPDF, "failed to write updated xref entry", err)
		}
	}
	if len(w.newEntries) > 0 {
		first := w.newEntries[0].id
		if _, err := fmt.Fprintf(w.buf, "%d %d\n", first, len(w.newEntries)); err != nil {
			return errs.Wrap(errs.InvalidPDF, "failed to write xref subsection header", err)
		}
		for _, e := range w.newEntries {
			if _, err := fmt.Fprintf(w.buf, "%010d 00000 n\r\n", e.offset); err != nil {
				return errs.Wrap(errs.InvalidPDF, "failed to write new xref entry", err)
			}
		}
	}
	return nil
}

func (w *Writer) writeTrailer(rootObjectID uint32, xrefStart int64) error {
	totalEntries := w.reader.XrefInformation.ItemCount + int64(len(w.newEntries)) + 1
	var b bytes.Buffer
	b.WriteString("trailer\n<<\n")
	fmt.Fprintf(&b, "  /Size %d\n", totalEntries)
	fmt.Fprintf(&b, "  /Root %d 0 R\n", rootObjectID)
	fmt.Fprintf(&b, "  /Prev %d\n", w.reader.XrefInformation.StartPos)
	if id := w.reader.Trailer().Key("ID"); !id.IsNull() {
		id0 := hex.EncodeToString([]byte(id.Index(0).RawString()))
		id1 := hex.EncodeToString([]byte(id.Index(1).RawString()))
		fmt.Fprintf(&b, "  /ID [<%s><%s>]\n", id0, id1)
	}
	b.WriteString(">>\n")
	b.WriteString("startxref\n")
	b.WriteString(strconv.FormatInt(xrefStart, 10))
	b.WriteString("\n%%EOF\n")

	if _, err := w.buf.Write(b.Bytes()); err != nil {
		return errs.Wrap(errs.InvalidPDF, "failed to write trailer", err)
	}
	return nil
}

// xrefStreamColumns matches the teacher's /W [ 1 4 1 ] widening, which
// accommodates offsets beyond the 3-byte classic-table-era field width.
const xrefStreamColumns = 6

func (w *Writer) writeXrefStream(rootObjectID uint32) (uint32, error) {
	var rows bytes.Buffer
	for _, e := range w.updatedEntries {
		writeXrefStreamRow(&rows, 1, e.offset, 0)
	}
	for _, e := range w.newEntries {
		writeXrefStreamRow(&rows, 1, e.offset, 0)
	}

	xrefObjOffset := w.Len()
	xrefObjectID, err := w.reserveXrefStreamObjectID()
	if err != nil {
		return 0, err
	}
	writeXrefStreamRow(&rows, 1, xrefObjOffset, 0)

	predictor := w.reader.Trailer().Key("DecodeParms").Key("Predictor").Int64()
	if predictor == 0 {
		predictor = PredictorUp
	}
	encoded, err := encodeXrefStreamRows(rows.Bytes(), predictor)
	if err != nil {
		return 0, err
	}

	var indexArray []uint32
	for _, e := range w.updatedEntries {
		indexArray = append(indexArray, e.id, 1)
	}
	if len(w.newEntries) > 0 {
		indexArray = append(indexArray, w.newEntries[0].id, uint32(len(w.newEntries)))
	}
	indexArray = append(indexArray, xrefObjectID, 1)

	var header bytes.Buffer
	header.WriteString("<< /Type /XRef\n")
	fmt.Fprintf(&header, "  /Length %d\n", len(encoded))
	header.WriteString("  /Filter /FlateDecode\n")
	fmt.Fprintf(&header, "  /DecodeParms << /Columns %d /Predictor %d >>\n", xrefStreamColumns, predictor)
	header.WriteString("  /W [ 1 4 1 ]\n")
	fmt.Fprintf(&header, "  /Prev %d\n", w.reader.XrefInformation.StartPos)
	fmt.Fprintf(&header, "  /Size %d\n", xrefObjectID+1)
	fmt.Fprintf(&header, "  /Root %d 0 R\n", rootObjectID)
	if len(indexArray) > 0 {
		header.WriteString("  /Index [")
		for _, idx := range indexArray {
			fmt.Fprintf(&header, " %d", idx)
		}
		header.WriteString(" ]\n")
	}
	if id := w.reader.Trailer().Key("ID"); !id.IsNull() {
		id0 := hex.EncodeToString([]byte(id.Index(0).RawString()))
		id1 := hex.EncodeToString([]byte(id.Index(1).RawString()))
		fmt.Fprintf(&header, "  /ID [<%s><%s>]\n", id0, id1)
	}
	header.WriteString(">>\n")

	if _, err := fmt.Fprintf(w.buf, "%d 0 obj\n", xrefObjectID); err != nil {
		return 0, errs.Wrap(errs.InvalidPDF, "failed to write xref stream object header", err)
	}
	if _, err := w.buf.Write(header.Bytes()); err != nil {
		return 0, errs.Wrap(errs.InvalidPDF, "failed to write xref stream dictionary", err)
	}
	if _, err := w.buf.Write([]byte("stream\n")); err != nil {
		return 0, errs.Wrap(errs.InvalidPDF, "failed to write xref stream marker", err)
	}
	if _, err := w.buf.Write(encoded); err != nil {
		return 0, errs.Wrap(errs.InvalidPDF, "failed to write xref stream data", err)
	}
	if _, err := w.buf.Write([]byte("\nendstream\nendobj\n")); err != nil {
		return 0, errs.Wrap(errs.InvalidPDF, "failed to terminate xref stream object", err)
	}

	return xrefObjectID, nil
}

func (w *Writer) reserveXrefStreamObjectID() (uint32, error) {
	w.lastObjectID++
	return w.lastObjectID, nil
}

func writeXrefStreamRow(b *bytes.Buffer, xreftype byte, offset int64, gen byte) {
	b.WriteByte(xreftype)
	offsetBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(offsetBytes, uint32(offset))
	b.Write(offsetBytes)
	b.WriteByte(gen)
}

func encodeXrefStreamRows(data []byte, predictor int64) ([]byte, error) {
	switch predictor {
	case PredictorSub:
		return EncodePNGSub(xrefStreamColumns, data)
	case PredictorUp:
		return EncodePNGUp(xrefStreamColumns, data)
	default:
		var b bytes.Buffer
		zw := zlib.NewWriter(&b)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	}
}

// EncodePNGSub applies the PNG "Sub" predictor filter, then deflates, per
// ISO 32000-1 Annex F / RFC 2083.
func EncodePNGSub(columns int, data []byte) ([]byte, error) {
	if len(data)%columns != 0 {
		return nil, errs.New(errs.InvalidPDF, "xref stream data is not a multiple of the row width")
	}
	rowCount := len(data) / columns
	var rows bytes.Buffer
	row := make([]byte, columns)
	for i := 0; i < rowCount; i++ {
		src := data[columns*i : columns*(i+1)]
		row[0] = src[0]
		for j := 1; j < columns; j++ {
			row[j] = src[j] - src[j-1]
		}
		rows.WriteByte(1)
		rows.Write(row)
	}
	return deflate(rows.Bytes())
}

// EncodePNGUp applies the PNG "Up" predictor filter, then deflates.
func EncodePNGUp(columns int, data []byte) ([]byte, error) {
	if len(data)%columns != 0 {
		return nil, errs.New(errs.InvalidPDF, "xref stream data is not a multiple of the row width")
	}
	rowCount := len(data) / columns
	prev := make([]byte, columns)
	var rows bytes.Buffer
	row := make([]byte, columns)
	for i := 0; i < rowCount; i++ {
		src := data[columns*i : columns*(i+1)]
		for j := 0; j < columns; j++ {
			row[j] = src[j] - prev[j]
		}
		copy(prev, src)
		rows.WriteByte(2)
		rows.Write(row)
	}
	return deflate(rows.Bytes())
}

func deflate(data []byte) ([]byte, error) {
	var b bytes.Buffer
	zw := zlib.NewWriter(&b)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
