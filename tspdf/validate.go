package tspdf

import (
	"bytes"
	"crypto/x509"
	"encoding/hex"
	"math/big"

	"github.com/digitorus/pkcs7"

	"github.com/mingulov/pdftsa/errs"
	"github.com/mingulov/pdftsa/hashalg"
	"github.com/mingulov/pdftsa/internal/der"
)

// Validate implements component F: it confirms the token's messageImprint
// binds to prepared's document hash, confirms the nonce echo (if one was
// sent), verifies the TSA's CMS signature over the TSTInfo, and extracts
// the metadata a caller needs. An unparseable or cryptographically invalid
// token is never returned successfully — per spec §9's Design Notes, this
// module does not fall back to embedding raw, unverified bytes.
func Validate(tokenDER []byte, prepared *PreparedPdf, wantNonce *big.Int) (*TimestampToken, error) {
	ci, err := der.ParseContentInfo(tokenDER)
	if err != nil {
		return nil, err
	}
	sd, err := ci.SignedData()
	if err != nil {
		return nil, err
	}
	info, err := sd.TSTInfo()
	if err != nil {
		return nil, err
	}

	alg, err := hashalg.FromOID(info.MessageImprint.HashAlgorithm.Algorithm)
	if err != nil {
		return nil, err
	}
	if alg != prepared.Alg {
		return nil, errs.New(errs.HashMismatch, "TSA responded with a different digest algorithm than requested")
	}
	if !bytes.Equal(info.MessageImprint.HashedMessage, prepared.DocumentHash) {
		return nil, errs.New(errs.HashMismatch, "TSTInfo messageImprint does not match the document's ByteRange hash")
	}
	if wantNonce != nil {
		if info.Nonce == nil || info.Nonce.Cmp(wantNonce) != 0 {
			return nil, errs.New(errs.HashMismatch, "TSTInfo nonce does not match the request")
		}
	}

	if err := verifyTokenSignature(tokenDER); err != nil {
		return nil, err
	}

	return &TimestampToken{
		Raw:            tokenDER,
		Policy:         info.Policy,
		GenTime:        info.GenTime,
		SerialNumber:   hex.EncodeToString(info.SerialNumber.Bytes()),
		HashAlgorithm:  alg,
		MessageDigest:  hex.EncodeToString(info.MessageImprint.HashedMessage),
		HasCertificate: len(sd.CertificateDER()) > 0,
		Nonce:          info.Nonce,
	}, nil
}

// verifyTokenSignature checks the TSA's CMS signature over the TSTInfo,
// grounded on verify/signature.go's verifySignature. Trust-anchor
// validation is deliberately not performed here (spec §4.F defers it to an
// optional external trust store); this only confirms the signature is
// internally consistent with its own embedded certificate.
func verifyTokenSignature(tokenDER []byte) error {
	p7, err := pkcs7.Parse(tokenDER)
	if err != nil {
		return errs.Wrap(errs.InvalidResponse, "failed to parse TimeStampToken as CMS SignedData", err)
	}

	pool := x509.NewCertPool()
	for _, cert := range p7.Certificates {
		pool.AddCert(cert)
	}
	if err := p7.VerifyWithChain(pool); err != nil {
		if err := p7.Verify(); err != nil {
			return errs.Wrap(errs.InvalidResponse, "TimeStampToken signature verification failed", err)
		}
	}
	return nil
}
