// Package der is the narrow internal adapter behind which this module's
// ASN.1/DER codec backends live: encoding/asn1 struct tags for the RFC 3161
// and CMS structures this module owns end-to-end, and golang.org/x/crypto/
// cryptobyte for offset-tracking element-by-element walking (Reader). OCSP
// responses and CRLs are not decoded here; they are carried as raw DER.
// Several exported struct fields are asn1.RawValue, so callers outside this
// package do see that type.
package der

import (
	"encoding/asn1"
	"math/big"
	"time"
)

// AlgorithmIdentifier mirrors RFC 5280's AlgorithmIdentifier, used for both
// digest and signature algorithm fields throughout CMS and RFC 3161.
type AlgorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

// MessageImprint ::= SEQUENCE { hashAlgorithm AlgorithmIdentifier,
//
//	hashedMessage OCTET STRING }
type MessageImprint struct {
	HashAlgorithm AlgorithmIdentifier
	HashedMessage []byte
}

// TimeStampReq ::= SEQUENCE { version INTEGER { v1(1) },
//
//	messageImprint MessageImprint,
//	reqPolicy TSAPolicyId OPTIONAL,
//	nonce INTEGER OPTIONAL,
//	certReq BOOLEAN DEFAULT FALSE,
//	extensions [0] IMPLICIT Extensions OPTIONAL }
type TimeStampReq struct {
	Version        int `asn1:"default:1"`
	MessageImprint MessageImprint
	ReqPolicy      asn1.ObjectIdentifier `asn1:"optional"`
	Nonce          *big.Int              `asn1:"optional"`
	CertReq        bool                  `asn1:"optional,default:false"`
}

// PKIStatusInfo ::= SEQUENCE { status PKIStatus,
//
//	statusString  PKIFreeText     OPTIONAL,
//	failInfo      PKIFailureInfo  OPTIONAL }
type PKIStatusInfo struct {
	Status       int
	StatusString []string       `asn1:"optional,utf8"`
	FailInfo     asn1.BitString `asn1:"optional"`
}

// TimeStampResp ::= SEQUENCE { status PKIStatusInfo,
//
//	timeStampToken TimeStampToken OPTIONAL }
//
// timeStampToken is kept as the raw ContentInfo DER (RawToken) rather than
// decoded inline: it is a full CMS ContentInfo, decoded on demand via
// ParseContentInfo so callers that only care about the status never pay for
// a CMS parse.
type TimeStampResp struct {
	Status   PKIStatusInfo
	RawToken asn1.RawValue `asn1:"optional"`
}

// HasToken reports whether the TSA included a timeStampToken.
func (r TimeStampResp) HasToken() bool {
	return len(r.RawToken.FullBytes) > 0
}

// Accuracy ::= SEQUENCE { seconds INTEGER OPTIONAL,
//
//	millis [0] INTEGER (1..999) OPTIONAL,
//	micros [1] INTEGER (1..999) OPTIONAL }
type Accuracy struct {
	Seconds int `asn1:"optional"`
	Millis  int `asn1:"optional,tag:0"`
	Micros  int `asn1:"optional,tag:1"`
}

// TSTInfo ::= SEQUENCE { version INTEGER { v1(1) },
//
//	policy                 TSAPolicyId,
//	messageImprint         MessageImprint,
//	serialNumber           INTEGER,
//	genTime                GeneralizedTime,
//	accuracy               Accuracy OPTIONAL,
//	ordering               BOOLEAN DEFAULT FALSE,
//	nonce                  INTEGER OPTIONAL,
//	tsa                    [0] GeneralName OPTIONAL,
//	extensions             [1] IMPLICIT Extensions OPTIONAL }
type TSTInfo struct {
	Version        int `asn1:"default:1"`
	Policy         asn1.ObjectIdentifier
	MessageImprint MessageImprint
	SerialNumber   *big.Int
	GenTime        time.Time `asn1:"generalized"`
	Accuracy       Accuracy  `asn1:"optional"`
	Ordering       bool      `asn1:"optional,default:false"`
	Nonce          *big.Int  `asn1:"optional"`
	// TSA is a GeneralName, a CHOICE type, so X.680 requires EXPLICIT
	// tagging here regardless of the module's implicit default.
	TSA asn1.RawValue `asn1:"optional,explicit,tag:0"`
}

// FailInfo bit positions, RFC 3161 §2.4.2.
const (
	FailInfoBadAlgorithm           = 0
	FailInfoBadRequest             = 2
	FailInfoBadDataFormat          = 5
	FailInfoTimeNotAvailable       = 14
	FailInfoUnacceptedPolicy       = 15
	FailInfoUnacceptedExtension    = 16
	FailInfoAddInfoNotAvailable    = 17
	FailInfoSystemFailure          = 25
)

// PKIStatus values, RFC 3161 §2.4.2.
const (
	StatusGranted             = 0
	StatusGrantedWithMods     = 1
	StatusRejection           = 2
	StatusWaiting             = 3
	StatusRevocationWarning   = 4
	StatusRevocationNotifica  = 5
)

// OIDs this module's codec needs to recognise directly (beyond the hash
// algorithm OIDs in package hashalg).
var (
	OIDSignedData           = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	OIDTimeStampTokenContent = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 1, 4}
	OIDRevocationInfoArchival = asn1.ObjectIdentifier{1, 2, 840, 113583, 1, 1, 8}
	OIDContentType           = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	OIDMessageDigest         = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
)

// RevocationInfoArchival carries the CRLs and OCSP responses a signer
// attaches for the certificates in a chain (this module's LTV layer reads it
// from a token's unsigned attributes and never attaches one), per
// ETSI TS 101 733 / the digitorus/pdfsign revocation.InfoArchival shape.
type RevocationInfoArchival struct {
	CRL   []asn1.RawValue `asn1:"tag:0,optional,explicit"`
	OCSP  []asn1.RawValue `asn1:"tag:1,optional,explicit"`
	Other []asn1.RawValue `asn1:"tag:2,optional,explicit"`
}

// AddCRL appends a DER-encoded CertificateList.
func (r *RevocationInfoArchival) AddCRL(der []byte) {
	r.CRL = append(r.CRL, asn1.RawValue{FullBytes: der})
}

// AddOCSP appends a DER-encoded OCSP BasicOCSPResponse (wrapped the way RFC
// 3161 expects, as an OCSPResponse envelope).
func (r *RevocationInfoArchival) AddOCSP(der []byte) {
	r.OCSP = append(r.OCSP, asn1.RawValue{FullBytes: der})
}
