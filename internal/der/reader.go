package der

import (
	"encoding/asn1"
	"math/big"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Reader walks a DER byte string element by element, tracking how many
// bytes have been consumed so a caller that hits malformed input can report
// a precise offset. The TimeStampReq encoder and the struct-tag decoders in
// types.go/cms.go do not use it; they go through encoding/asn1 directly.
type Reader struct {
	input    cryptobyte.String
	consumed int
	total    int
}

// NewReader wraps raw for sequential reading.
func NewReader(raw []byte) *Reader {
	return &Reader{input: cryptobyte.String(raw), total: len(raw)}
}

// Offset returns the number of bytes consumed so far, for use in an offset
// diagnostic when a Read call fails.
func (r *Reader) Offset() int {
	return r.total - len(r.input)
}

// Empty reports whether the reader has consumed all input.
func (r *Reader) Empty() bool {
	return len(r.input) == 0
}

// ReadSequence reads the contents of a SEQUENCE into a new Reader scoped to
// just that content.
func (r *Reader) ReadSequence() (*Reader, bool) {
	var contents cryptobyte.String
	if !r.input.ReadASN1(&contents, cryptobyte_asn1.SEQUENCE) {
		return nil, false
	}
	return &Reader{input: contents, total: len(contents)}, true
}

// ReadInteger reads an INTEGER as a big.Int.
func (r *Reader) ReadInteger() (*big.Int, bool) {
	v := new(big.Int)
	if !r.input.ReadASN1Integer(v) {
		return nil, false
	}
	return v, true
}

// ReadSmallInteger reads an INTEGER small enough to fit in an int.
func (r *Reader) ReadSmallInteger() (int, bool) {
	var v int
	if !r.input.ReadASN1Integer(&v) {
		return 0, false
	}
	return v, true
}

// ReadOID reads an OBJECT IDENTIFIER. Arc decoding is delegated to
// encoding/asn1 rather than reimplemented: cryptobyte gives back the raw
// content octets, which are rewrapped in a minimal OID TLV header and
// handed to asn1.Unmarshal.
func (r *Reader) ReadOID() (asn1.ObjectIdentifier, bool) {
	var contents cryptobyte.String
	if !r.input.ReadASN1(&contents, cryptobyte_asn1.OBJECT_IDENTIFIER) {
		return nil, false
	}
	wrapped := buildHeader(0x06, contents)
	var oid asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(wrapped, &oid); err != nil {
		return nil, false
	}
	return oid, true
}

func buildHeader(tag byte, content []byte) []byte {
	out := make([]byte, 0, len(content)+5)
	out = append(out, tag)
	out = appendLength(out, len(content))
	return append(out, content...)
}

// ReadOctetString reads an OCTET STRING's content.
func (r *Reader) ReadOctetString() ([]byte, bool) {
	var s []byte
	if !r.input.ReadASN1Bytes(&s, cryptobyte_asn1.OCTET_STRING) {
		return nil, false
	}
	return s, true
}

// ReadBitString reads a BIT STRING's raw content bytes, including the
// leading unused-bits octet.
func (r *Reader) ReadBitString() ([]byte, bool) {
	var s []byte
	if !r.input.ReadASN1Bytes(&s, cryptobyte_asn1.BIT_STRING) {
		return nil, false
	}
	return s, true
}

// ReadGeneralizedTime reads a GENERALIZEDTIME value.
func (r *Reader) ReadGeneralizedTime() (time.Time, bool) {
	var t time.Time
	if !r.input.ReadASN1GeneralizedTime(&t) {
		return time.Time{}, false
	}
	return t, true
}

// ReadUTCTime reads a UTCTIME value.
func (r *Reader) ReadUTCTime() (time.Time, bool) {
	var contents cryptobyte.String
	if !r.input.ReadASN1(&contents, cryptobyte_asn1.UTCTime) {
		return time.Time{}, false
	}
	t, err := time.Parse("060102150405Z0700", string(contents))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ReadAnyContextTag reads a context-specific constructed element with the
// given tag number and returns its raw contents (without re-interpreting
// them), for CHOICE-typed fields this module only needs to pass through
// (e.g. TSTInfo's [0] GeneralName tsa field).
func (r *Reader) ReadAnyContextTag(tag int) ([]byte, bool) {
	var contents cryptobyte.String
	if !r.input.ReadASN1(&contents, cryptobyte_asn1.Tag(tag).ContextSpecific().Constructed()) {
		return nil, false
	}
	return contents, true
}

// PeekASN1Tag reports whether the next element carries the given
// context-specific tag, without consuming it — used for OPTIONAL fields
// whose presence can only be determined by checking the tag.
func (r *Reader) PeekASN1Tag(tag int) bool {
	return r.input.PeekASN1Tag(cryptobyte_asn1.Tag(tag).ContextSpecific().Constructed())
}

// SkipElement consumes and discards the next TLV element, regardless of its
// tag, for fields this module parses elsewhere via encoding/asn1 and only
// needs to step over here.
func (r *Reader) SkipElement() bool {
	var raw cryptobyte.String
	var tag cryptobyte_asn1.Tag
	return r.input.ReadAnyASN1Element(&raw, &tag)
}

