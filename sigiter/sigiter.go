// Package sigiter iterates the existing signature/timestamp fields of a
// PDF, trimmed from digitorus/pdfsign/extract/extract.go to just what the
// archive-timestamp component needs: enumerating DocTimeStamp
// (/SubFilter /ETSI.RFC3161) fields and handing back the bytes their
// ByteRange covers, for re-verification before an archive round.
package sigiter

import (
	"encoding/asn1"
	"errors"
	"io"
	"iter"

	"github.com/digitorus/pdf"
)

// Signature is one DocTimeStamp field found in the AcroForm's /Fields tree.
type Signature struct {
	Obj  pdf.Value
	File io.ReaderAt
}

// Contents returns the raw CMS TimeStampToken bytes stored in /Contents,
// without the zero padding that follows the token inside the placeholder.
// Bytes that do not start with a complete DER element are returned as is.
func (s *Signature) Contents() []byte {
	raw := []byte(s.Obj.Key("Contents").RawString())
	var token asn1.RawValue
	if _, err := asn1.Unmarshal(raw, &token); err == nil {
		return token.FullBytes
	}
	return raw
}

// ByteRange returns the four offsets the signature's hash was computed
// over.
func (s *Signature) ByteRange() []int64 {
	br := s.Obj.Key("ByteRange")
	if br.IsNull() || br.Len() == 0 {
		return nil
	}
	ranges := make([]int64, 0, br.Len())
	for i := 0; i < br.Len(); i++ {
		ranges = append(ranges, br.Index(i).Int64())
	}
	return ranges
}

// SignedData returns a reader over the document bytes this signature's
// ByteRange covers — the exact material its messageImprint was taken over.
func (s *Signature) SignedData() (io.Reader, error) {
	ranges := s.ByteRange()
	if len(ranges) == 0 || len(ranges)%2 != 0 {
		return nil, errors.New("invalid or missing ByteRange")
	}
	return &ByteRangeReader{File: s.File, Ranges: ranges}, nil
}

// Iter walks rdr's AcroForm field tree and yields every field whose /V is a
// DocTimeStamp dictionary (/SubFilter /ETSI.RFC3161), skipping ordinary
// signature (/SubFilter /adbe.pkcs7.detached) fields — this module only
// ever needs to re-verify timestamps, never author signatures.
func Iter(rdr *pdf.Reader, file io.ReaderAt) iter.Seq2[*Signature, error] {
	return func(yield func(*Signature, error) bool) {
		root := rdr.Trailer().Key("Root")
		acroForm := root.Key("AcroForm")
		if acroForm.Key("SigFlags").IsNull() {
			return
		}

		var traverse func(pdf.Value) bool
		traverse = func(arr pdf.Value) bool {
			if arr.IsNull() || arr.Kind() != pdf.Array {
				return true
			}
			for i := 0; i < arr.Len(); i++ {
				field := arr.Index(i)
				if field.Key("FT").Name() == "Sig" {
					v := field.Key("V")
					if v.Key("SubFilter").Name() == "ETSI.RFC3161" {
						sig := &Signature{Obj: v, File: file}
						if !yield(sig, nil) {
							return false
						}
					}
				}
				if kids := field.Key("Kids"); !kids.IsNull() {
					if !traverse(kids) {
						return false
					}
				}
			}
			return true
		}
		traverse(acroForm.Key("Fields"))
	}
}

// ByteRangeReader presents the non-contiguous spans Ranges names, read from
// File, as a single continuous stream.
type ByteRangeReader struct {
	File      io.ReaderAt
	Ranges    []int64
	rangeIdx  int
	readInCur int64
}

func (r *ByteRangeReader) Read(p []byte) (n int, err error) {
	if r.rangeIdx >= len(r.Ranges) {
		return 0, io.EOF
	}

	totalRead := 0
	for totalRead < len(p) && r.rangeIdx < len(r.Ranges) {
		start := r.Ranges[r.rangeIdx]
		length := r.Ranges[r.rangeIdx+1]

		remaining := length - r.readInCur
		if remaining <= 0 {
			r.rangeIdx += 2
			r.readInCur = 0
			continue
		}

		toRead := int64(len(p) - totalRead)
		if toRead > remaining {
			toRead = remaining
		}

		bytesRead, readErr := r.File.ReadAt(p[totalRead:totalRead+int(toRead)], start+r.readInCur)
		if bytesRead > 0 {
			totalRead += bytesRead
			r.readInCur += int64(bytesRead)
		}
		if readErr != nil {
			if readErr == io.EOF && r.readInCur == length {
				r.rangeIdx += 2
				r.readInCur = 0
				continue
			}
			return totalRead, readErr
		}
	}

	if totalRead == 0 && r.rangeIdx >= len(r.Ranges) {
		return 0, io.EOF
	}
	return totalRead, nil
}
