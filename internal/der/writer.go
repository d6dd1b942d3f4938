package der

import (
	"crypto/rand"
	"encoding/asn1"
	"math/big"

	"github.com/mingulov/pdftsa/errs"
)

// NewMessageImprint builds a MessageImprint from a digest algorithm OID and
// the already-computed hash of the message.
func NewMessageImprint(hashAlgorithm asn1.ObjectIdentifier, hashed []byte) MessageImprint {
	return MessageImprint{
		HashAlgorithm: AlgorithmIdentifier{Algorithm: hashAlgorithm, Parameters: asn1.RawValue{Tag: asn1.TagNull}},
		HashedMessage: hashed,
	}
}

// BuildTimeStampReqOptions configures EncodeTimeStampReq.
type BuildTimeStampReqOptions struct {
	Policy  asn1.ObjectIdentifier
	CertReq bool
	// Nonce requests a random nonce be generated and included. Per RFC 3161
	// §2.4.1, if present in the request it must be echoed back unmodified
	// in the response; this module verifies that echo in the TSA client.
	Nonce bool
}

// EncodeTimeStampReq builds the DER encoding of a TimeStampReq. When
// opts.Nonce is set, the generated nonce is returned alongside the encoded
// bytes so the caller can verify it against the response.
func EncodeTimeStampReq(imprint MessageImprint, opts BuildTimeStampReqOptions) (encoded []byte, nonce *big.Int, err error) {
	req := TimeStampReq{
		Version:        1,
		MessageImprint: imprint,
		ReqPolicy:      opts.Policy,
		CertReq:        opts.CertReq,
	}
	if opts.Nonce {
		nonce, err = rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 160))
		if err != nil {
			return nil, nil, errs.Wrap(errs.TSANetwork, "failed to generate nonce", err)
		}
		req.Nonce = nonce
	}
	out, err := asn1.Marshal(req)
	if err != nil {
		return nil, nil, errs.Wrap(errs.InvalidPDF, "failed to encode TimeStampReq", err)
	}
	return out, nonce, nil
}

// EncodeRevocationInfoArchival DER-encodes a RevocationInfoArchival value
// for embedding as an unsigned attribute value.
func EncodeRevocationInfoArchival(info *RevocationInfoArchival) ([]byte, error) {
	out, err := asn1.Marshal(*info)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidPDF, "failed to encode RevocationInfoArchival", err)
	}
	return out, nil
}

// EncodeAttribute DER-encodes a single CMS Attribute (attrType + one
// attrValue). No code path of this module adds the result to an existing
// signature's SignerInfo.
func EncodeAttribute(oid asn1.ObjectIdentifier, value []byte) ([]byte, error) {
	attr := Attribute{
		Type:   oid,
		Values: []asn1.RawValue{{FullBytes: value}},
	}
	out, err := asn1.Marshal(attr)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidPDF, "failed to encode attribute", err)
	}
	return out, nil
}
