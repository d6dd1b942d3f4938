package der

import (
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/mingulov/pdftsa/errs"
)

// ContentInfo ::= SEQUENCE { contentType ContentType,
//
//	content [0] EXPLICIT ANY DEFINED BY contentType }
//
// This is the outer shape of a TimeStampToken (and of any other CMS
// object); a TSA's response body is a TimeStampResp that carries the token.
type ContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,tag:0"`
}

// EncapsulatedContentInfo ::= SEQUENCE { eContentType ContentType,
//
//	eContent [0] EXPLICIT OCTET STRING OPTIONAL }
type EncapsulatedContentInfo struct {
	EContentType asn1.ObjectIdentifier
	EContent     []byte `asn1:"optional,explicit,tag:0"`
}

// SignedData ::= SEQUENCE { version CMSVersion,
//
//	digestAlgorithms DigestAlgorithmIdentifiers,
//	encapContentInfo EncapsulatedContentInfo,
//	certificates [0] IMPLICIT CertificateSet OPTIONAL,
//	crls [1] IMPLICIT RevocationInfoChoices OPTIONAL,
//	signerInfos SignerInfos }
//
// This module only ever reads a SignedData (a TSA's TimeStampToken, or an
// existing signature's CMS envelope when building LTA material); it never
// writes one. github.com/digitorus/pkcs7 is used only to verify a token's
// signature, not to build CMS.
type SignedData struct {
	Version          int
	DigestAlgorithms []AlgorithmIdentifier `asn1:"set"`
	EncapContentInfo EncapsulatedContentInfo
	Certificates     []asn1.RawValue `asn1:"optional,tag:0"`
	CRLs             []asn1.RawValue `asn1:"optional,tag:1"`
	SignerInfos      []SignerInfo    `asn1:"set"`
}

// SignerInfo ::= SEQUENCE { version CMSVersion,
//
//	sid SignerIdentifier,
//	digestAlgorithm DigestAlgorithmIdentifier,
//	signedAttrs [0] IMPLICIT SignedAttributes OPTIONAL,
//	signatureAlgorithm SignatureAlgorithmIdentifier,
//	signature SignatureValue,
//	unsignedAttrs [1] IMPLICIT UnsignedAttributes OPTIONAL }
type SignerInfo struct {
	Version            int
	RawSID             asn1.RawValue
	DigestAlgorithm    AlgorithmIdentifier
	RawSignedAttrs     asn1.RawValue `asn1:"optional,tag:0"`
	SignatureAlgorithm AlgorithmIdentifier
	Signature          []byte
	RawUnsignedAttrs   asn1.RawValue `asn1:"optional,tag:1"`
}

// IssuerAndSerialNumber ::= SEQUENCE { issuer Name, serialNumber
// CertificateSerialNumber }
type IssuerAndSerialNumber struct {
	Issuer       asn1.RawValue
	SerialNumber *big.Int
}

// Attribute ::= SEQUENCE { attrType OBJECT IDENTIFIER,
//
//	attrValues SET OF AttributeValue }
type Attribute struct {
	Type   asn1.ObjectIdentifier
	Values []asn1.RawValue `asn1:"set"`
}

// ParseContentInfo decodes the outermost ContentInfo wrapper of a
// TimeStampToken or any other CMS object. A truncated outer element and
// trailing bytes after it are reported as errs.InvalidResponse with their
// byte offset; a malformed structure inside the element is reported as
// errs.InvalidResponse wrapping the decoder's error, without an offset.
func ParseContentInfo(raw []byte) (*ContentInfo, error) {
	if _, err := stripHeader(raw); err != nil {
		return nil, err
	}
	var ci ContentInfo
	rest, err := asn1.Unmarshal(raw, &ci)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidResponse, "malformed ContentInfo", err)
	}
	if len(rest) != 0 {
		return nil, errs.WithOffset(errs.InvalidResponse, "trailing bytes after ContentInfo", len(raw)-len(rest))
	}
	return &ci, nil
}

// SignedData decodes ci.Content as a CMS SignedData. ci.ContentType must be
// id-signedData (1.2.840.113549.1.7.2).
func (ci *ContentInfo) SignedData() (*SignedData, error) {
	if !ci.ContentType.Equal(OIDSignedData) {
		return nil, errs.New(errs.InvalidResponse, "ContentInfo is not of type signedData")
	}
	var sd SignedData
	rest, err := asn1.Unmarshal(ci.Content.Bytes, &sd)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidResponse, "malformed SignedData", err)
	}
	if len(rest) != 0 {
		return nil, errs.WithOffset(errs.InvalidResponse, "trailing bytes after SignedData", len(ci.Content.Bytes)-len(rest))
	}
	return &sd, nil
}

// TSTInfo decodes the encapsulated content of sd as a TSTInfo. The eContent
// type must be id-ct-TSTInfo (1.2.840.113549.1.9.16.1.4).
func (sd *SignedData) TSTInfo() (*TSTInfo, error) {
	if !sd.EncapContentInfo.EContentType.Equal(OIDTimeStampTokenContent) {
		return nil, errs.New(errs.InvalidResponse, "SignedData does not encapsulate a TSTInfo")
	}
	if len(sd.EncapContentInfo.EContent) == 0 {
		return nil, errs.New(errs.InvalidResponse, "TSTInfo content is absent")
	}
	var info TSTInfo
	rest, err := asn1.Unmarshal(sd.EncapContentInfo.EContent, &info)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidResponse, "malformed TSTInfo", err)
	}
	if len(rest) != 0 {
		return nil, errs.WithOffset(errs.InvalidResponse, "trailing bytes after TSTInfo", len(sd.EncapContentInfo.EContent)-len(rest))
	}
	return &info, nil
}

// CertificateDER returns the raw DER of every certificate in sd's
// certificates set, in encounter order.
func (sd *SignedData) CertificateDER() [][]byte {
	out := make([][]byte, 0, len(sd.Certificates))
	for _, c := range sd.Certificates {
		out = append(out, c.FullBytes)
	}
	return out
}

// IssuerAndSerial parses a SignerInfo's SignerIdentifier as the
// issuerAndSerialNumber CHOICE (the RFC 3161 default; TSAs practically
// never use the subjectKeyIdentifier alternative).
func (si *SignerInfo) IssuerAndSerial() (*IssuerAndSerialNumber, error) {
	var out IssuerAndSerialNumber
	if _, err := asn1.Unmarshal(si.RawSID.FullBytes, &out); err != nil {
		return nil, fmt.Errorf("signer identifier is not an issuerAndSerialNumber: %w", err)
	}
	return &out, nil
}

// SignedAttributes decodes the [0] IMPLICIT SignedAttributes SET, if
// present. Implicit tagging replaces the outer SET's tag with a
// context-specific one, so the captured raw bytes need their tag rewritten
// back to the universal SET tag before they can be parsed as SET OF
// Attribute — rewrapAsUniversalSet does exactly that.
func (si *SignerInfo) SignedAttributes() ([]Attribute, error) {
	return decodeAttributeSet(si.RawSignedAttrs)
}

// UnsignedAttributes decodes the [1] IMPLICIT UnsignedAttributes SET, if
// present (this is where a RevocationInfoArchival attribute lives).
func (si *SignerInfo) UnsignedAttributes() ([]Attribute, error) {
	return decodeAttributeSet(si.RawUnsignedAttrs)
}

func decodeAttributeSet(raw asn1.RawValue) ([]Attribute, error) {
	if len(raw.FullBytes) == 0 {
		return nil, nil
	}
	wrapped, err := rewrapAsUniversalSet(raw)
	if err != nil {
		return nil, err
	}
	var attrs []Attribute
	rest, err := asn1.UnmarshalWithParams(wrapped, &attrs, "set")
	if err != nil {
		return nil, errs.Wrap(errs.InvalidResponse, "malformed attribute set", err)
	}
	if len(rest) != 0 {
		return nil, errs.New(errs.InvalidResponse, "trailing bytes after attribute set")
	}
	return attrs, nil
}

// FindAttribute returns the first attribute with the given OID, or nil.
func FindAttribute(attrs []Attribute, oid asn1.ObjectIdentifier) *Attribute {
	for i := range attrs {
		if attrs[i].Type.Equal(oid) {
			return &attrs[i]
		}
	}
	return nil
}

// DecodeRevocationInfoArchival decodes the first RevocationInfoArchival attribute
// in attrs (OID 1.2.840.113583.1.1.8), if any.
func DecodeRevocationInfoArchival(attrs []Attribute) (*RevocationInfoArchival, error) {
	attr := FindAttribute(attrs, OIDRevocationInfoArchival)
	if attr == nil || len(attr.Values) == 0 {
		return nil, nil
	}
	var info RevocationInfoArchival
	if _, err := asn1.Unmarshal(attr.Values[0].FullBytes, &info); err != nil {
		return nil, errs.Wrap(errs.InvalidResponse, "malformed RevocationInfoArchival", err)
	}
	return &info, nil
}

// rewrapAsUniversalSet rebuilds the DER header of raw (captured with an
// implicit context-specific class/tag) as a universal SET OF, keeping the
// original content octets untouched.
func rewrapAsUniversalSet(raw asn1.RawValue) ([]byte, error) {
	if len(raw.Bytes) == 0 && len(raw.FullBytes) > 0 {
		// raw came straight from the wire (no intermediate Unmarshal call
		// populated Bytes); split header and content ourselves.
		content, err := stripHeader(raw.FullBytes)
		if err != nil {
			return nil, err
		}
		return buildSetHeader(content), nil
	}
	return buildSetHeader(raw.Bytes), nil
}

func buildSetHeader(content []byte) []byte {
	const setTag = 0x31 // universal, constructed, SET OF
	out := make([]byte, 0, len(content)+5)
	out = append(out, setTag)
	out = appendLength(out, len(content))
	out = append(out, content...)
	return out
}

func appendLength(out []byte, n int) []byte {
	if n < 0x80 {
		return append(out, byte(n))
	}
	var lenBytes []byte
	for v := n; v > 0; v >>= 8 {
		lenBytes = append([]byte{byte(v)}, lenBytes...)
	}
	out = append(out, 0x80|byte(len(lenBytes)))
	return append(out, lenBytes...)
}

// stripHeader returns the content octets of a single DER TLV, skipping its
// tag and length bytes.
func stripHeader(full []byte) ([]byte, error) {
	if len(full) < 2 {
		return nil, errs.WithOffset(errs.InvalidResponse, "truncated DER header", 0)
	}
	n := int(full[1])
	if n < 0x80 {
		if 2+n > len(full) {
			return nil, errs.WithOffset(errs.InvalidResponse, "truncated DER value", 2)
		}
		return full[2 : 2+n], nil
	}
	numLenBytes := n &^ 0x80
	if numLenBytes == 0 || 2+numLenBytes > len(full) {
		return nil, errs.WithOffset(errs.InvalidResponse, "truncated DER length", 1)
	}
	length := 0
	for _, b := range full[2 : 2+numLenBytes] {
		length = length<<8 | int(b)
	}
	start := 2 + numLenBytes
	if start+length > len(full) {
		return nil, errs.WithOffset(errs.InvalidResponse, "truncated DER value", start)
	}
	return full[start : start+length], nil
}
