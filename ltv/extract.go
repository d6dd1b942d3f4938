package ltv

import (
	"crypto/x509"

	"github.com/mingulov/pdftsa/internal/der"
)

// Extract pulls the certificates and any already-embedded revocation
// material (the RevocationInfoArchival unsigned attribute) out of a
// TimeStampToken, without performing any network I/O. Grounded on
// verify/signature.go's handling of a DocTimeStamp's embedded certificate
// set and revocation.InfoArchival.
func Extract(tokenDER []byte) (LTVData, error) {
	ci, err := der.ParseContentInfo(tokenDER)
	if err != nil {
		return LTVData{}, err
	}
	sd, err := ci.SignedData()
	if err != nil {
		return LTVData{}, err
	}

	var data LTVData
	data.Certs = sd.CertificateDER()

	if len(sd.SignerInfos) == 0 {
		return data, nil
	}
	attrs, err := sd.SignerInfos[0].UnsignedAttributes()
	if err != nil {
		return LTVData{}, err
	}
	archival, err := der.DecodeRevocationInfoArchival(attrs)
	if err != nil {
		return LTVData{}, err
	}
	if archival == nil {
		return data, nil
	}

	for _, crl := range archival.CRL {
		data.CRLs = append(data.CRLs, crl.FullBytes)
	}
	for _, ocsp := range archival.OCSP {
		data.OCSPs = append(data.OCSPs, ocsp.FullBytes)
	}
	return data, nil
}

// ParseCertificates decodes der into x509.Certificate values, skipping (not
// failing on) any entry that doesn't parse — a single malformed certificate
// in a token's certificate set must not block LTV enrichment for the rest.
func ParseCertificates(certDER [][]byte) []*x509.Certificate {
	out := make([]*x509.Certificate, 0, len(certDER))
	for _, raw := range certDER {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			continue
		}
		out = append(out, cert)
	}
	return out
}
