// Package tspdf implements the RFC 3161 document-timestamp placeholder
// mechanics and the stateful/one-shot session contracts that drive them
// (spec components E, F, H). It is modelled on digitorus/pdfsign's
// sign.SignContext, but its session struct carries only the input bytes,
// the options, the request nonce, and the prepared PDF with its byte-range
// bookkeeping, and it is restricted to the
// TimeStampSignature path: no CertType switch, no private-key signer, no
// visible appearance.
package tspdf

import (
	"encoding/asn1"
	"math/big"
	"time"

	"github.com/mingulov/pdftsa/hashalg"
)

// defaultSignatureSize is the placeholder size (in raw bytes, before hex
// expansion) used when Options.SignatureSize is left zero, per spec §4.E.
const defaultSignatureSize = 8192

// ltvSignatureSize is used instead when Options.EnableLTV is set, since an
// LTV-eligible token tends to carry a fuller certificate chain.
const ltvSignatureSize = 16384

// defaultFieldName is the signature field /T used when Options.FieldName
// is left empty.
const defaultFieldName = "Timestamp1"

// Options configures a timestamp operation. Zero fields are defaulted by
// the accessor methods signatureSize, fieldName and now each time they are
// read; the struct itself is never modified.
type Options struct {
	// SignatureSize is the raw byte length reserved for the token inside
	// the /Contents placeholder (hex-expanded, so the placeholder is
	// 2*SignatureSize hex digits). Zero selects a spec-mandated default.
	SignatureSize uint32

	// FieldName is the new signature field's /T value. Zero value selects
	// "Timestamp1"; TimestampPdfMultiple assigns "Timestamp2", "Timestamp3"...
	// for subsequent rounds to avoid field-name collisions (spec §9 Design
	// Notes: unique field naming is mandated, not left to silent overwrite).
	FieldName string

	// EnableLTV, when true, doubles the default placeholder size. tspdf
	// itself never performs a network fetch and never appends a DSS, and the
	// ltv package does not read this field; EnableLTV only affects sizing.
	EnableLTV bool

	// Alg selects the digest algorithm hashed over the ByteRange. Zero
	// value is hashalg.SHA256.
	Alg hashalg.Algorithm

	// Policy, when non-nil, is sent as the TSA request's reqPolicy.
	Policy asn1.ObjectIdentifier

	// Now returns the current time; overridable for deterministic tests of
	// the /M signing-time entry, per spec §9's pluggable-time-source note.
	Now func() time.Time
}

func (o Options) signatureSize() uint32 {
	if o.SignatureSize != 0 {
		return o.SignatureSize
	}
	if o.EnableLTV {
		return ltvSignatureSize
	}
	return defaultSignatureSize
}

func (o Options) fieldName() string {
	if o.FieldName != "" {
		return o.FieldName
	}
	return defaultFieldName
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// PreparedPdf is an immutable snapshot of a PDF augmented with one
// incremental update containing a DocTimeStamp signature dictionary whose
// /Contents is all-zero hex padding, per spec §3.
type PreparedPdf struct {
	// Bytes is the full output buffer, placeholder still zero-filled.
	Bytes []byte

	RootObjectID      uint32
	SignatureObjectID uint32
	FieldName         string

	// ByteRange is (offset1, length1, offset2, length2), skipping exactly
	// the placeholder's "<...>" window.
	ByteRange [4]int64

	// ContentsOffset is the byte index of the placeholder's first hex
	// digit (just past the opening '<').
	ContentsOffset int
	// PlaceholderLen is the even hex-digit count of the placeholder
	// window, equal to 2 * Options.signatureSize().
	PlaceholderLen int

	Alg hashalg.Algorithm
	// DocumentHash is the digest of the ByteRange-selected bytes, computed
	// once at prepare time.
	DocumentHash []byte
}

// RangeBytes returns the two ByteRange-selected spans of Bytes,
// concatenated — the exact material a TSA's messageImprint must cover.
func (p *PreparedPdf) RangeBytes() []byte {
	out := make([]byte, 0, p.ByteRange[1]+p.ByteRange[3])
	out = append(out, p.Bytes[p.ByteRange[0]:p.ByteRange[0]+p.ByteRange[1]]...)
	out = append(out, p.Bytes[p.ByteRange[2]:p.ByteRange[2]+p.ByteRange[3]]...)
	return out
}

// TimestampToken is the validated result of component F: the fields of a
// TSA's TimeStampToken that matter to a PAdES consumer, plus the raw DER
// for embedding/LTV extraction.
type TimestampToken struct {
	// Raw is the full ContentInfo DER (the exact bytes embedded as /Contents).
	Raw []byte

	Policy         asn1.ObjectIdentifier
	GenTime        time.Time
	SerialNumber   string // lowercase hex
	HashAlgorithm  hashalg.Algorithm
	MessageDigest  string // lowercase hex
	HasCertificate bool
	// Nonce is the TSTInfo's echoed nonce, if the request included one.
	Nonce *big.Int
}

// sessionState enforces the Fresh → RequestIssued → Embedded transitions
// spec §9's Design Notes mandate for TimestampSession.
type sessionState int

const (
	stateFresh sessionState = iota
	stateRequestIssued
	stateEmbedded
)

// TimestampSession is the stateful orchestrator for the manual (offline
// TSA) workflow: CreateTimestampRequest produces the TSQ bytes; the caller
// transports them out-of-band; EmbedTimestampToken consumes the
// TimeStampToken taken out of the TSA's response (a whole TimeStampResp is
// not accepted).
type TimestampSession struct {
	input []byte
	opts  Options
	state sessionState

	prepared *PreparedPdf
	nonce    *big.Int
}

// NewSession creates a Fresh session over pdfBytes with the given options.
func NewSession(pdfBytes []byte, opts Options) *TimestampSession {
	return &TimestampSession{input: pdfBytes, opts: opts, state: stateFresh}
}

// Result is the one-shot and post-embed output shape: the final PDF bytes
// plus the validated token metadata.
type Result struct {
	PDF       []byte
	Timestamp TimestampToken
}
