// Package lta implements spec component I: the PAdES-LTA archive
// timestamp. It re-enters the timestamp pipeline after a DSS has been
// written to add a covering timestamp over the whole document, including
// the DSS, so the validation material itself remains provable once the
// original signing certificates expire.
package lta

import (
	"bytes"
	"context"
	"crypto/x509"
	"io"

	"github.com/digitorus/pdf"

	"github.com/mingulov/pdftsa/errs"
	"github.com/mingulov/pdftsa/hashalg"
	"github.com/mingulov/pdftsa/internal/der"
	"github.com/mingulov/pdftsa/ltv"
	"github.com/mingulov/pdftsa/sigiter"
	"github.com/mingulov/pdftsa/tsaclient"
	"github.com/mingulov/pdftsa/tspdf"
)

// Options configures a TimestampPdfLTA run.
type Options struct {
	Timestamp  tspdf.Options
	Revocation ltv.Options
}

// Result is the archive-timestamp pipeline's output: the final PDF bytes,
// the new archive timestamp's validated token, and any non-fatal
// revocation-fetch warnings collected along the way (spec §9 Design Notes:
// these must surface as a structured list, not stderr logs).
type Result struct {
	PDF       []byte
	Timestamp tspdf.TimestampToken
	Warnings  []ltv.FetchWarning
}

// TimestampPdfLTA implements spec §4.I's six steps: enumerate existing
// DocTimeStamp fields (sigiter), re-verify each (tspdf.Validate),
// accumulate and complete their validation material (ltv.Complete), append
// one DSS covering everything (ltv.WriteDSS) with a VRI entry per existing
// signature keyed by SHA-1 of its signing certificate, and finally apply
// one more DocTimeStamp — through the normal prepare/embed path, with
// EnableLTV forced false so this round never triggers a second DSS.
func TimestampPdfLTA(ctx context.Context, pdfBytes []byte, tsa *tsaclient.Client, opts Options) (*Result, error) {
	src := bytes.NewReader(pdfBytes)
	r, err := pdf.NewReader(src, int64(len(pdfBytes)))
	if err != nil {
		return nil, errs.Wrap(errs.InvalidPDF, "failed to parse input PDF", err)
	}

	var collected ltv.LTVData
	vri := make(map[string]ltv.LTVData)
	var allCerts []*x509.Certificate
	certIssuer := make(map[string]*x509.Certificate)

	for sig, iterErr := range sigiter.Iter(r, src) {
		if iterErr != nil {
			return nil, errs.Wrap(errs.InvalidPDF, "failed to enumerate existing signatures", iterErr)
		}

		tokenDER := sig.Contents()
		if _, verifyErr := verifyExistingToken(sig, tokenDER); verifyErr != nil {
			return nil, verifyErr
		}

		material, err := ltv.Extract(tokenDER)
		if err != nil {
			return nil, err
		}
		collected = mergeLTVData(collected, material)

		certs := ltv.ParseCertificates(material.Certs)
		allCerts = append(allCerts, certs...)
		for i, c := range certs {
			if i+1 < len(certs) {
				certIssuer[string(c.Raw)] = certs[i+1]
			}
		}

		signingCert := signingCertificate(certs)
		if signingCert != nil {
			key := ltv.SHA1Hex(signingCert.Raw)
			vri[key] = mergeLTVData(vri[key], material)
		}
	}

	completed, warnings := ltv.Complete(ctx, allCerts, func(c *x509.Certificate) *x509.Certificate {
		return certIssuer[string(c.Raw)]
	}, collected, opts.Revocation)

	out := pdfBytes
	if !completed.Empty() || len(vri) > 0 {
		out, err = ltv.WriteDSS(pdfBytes, completed, vri)
		if err != nil {
			return nil, err
		}
	}

	archiveOpts := opts.Timestamp
	archiveOpts.EnableLTV = false
	result, err := tspdf.TimestampPdf(ctx, out, tsa, archiveOpts)
	if err != nil {
		return nil, err
	}

	return &Result{PDF: result.PDF, Timestamp: result.Timestamp, Warnings: warnings}, nil
}

// verifyExistingToken re-derives the hash of the bytes sig's token claims
// to cover, using the token's own declared algorithm, and runs it through
// tspdf.Validate — catching both a broken/forged token and a document that
// was tampered with after the original timestamp was applied.
func verifyExistingToken(sig *sigiter.Signature, tokenDER []byte) (*tspdf.TimestampToken, error) {
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

	signed, err := sig.SignedData()
	if err != nil {
		return nil, errs.Wrap(errs.InvalidPDF, "failed to read signature's ByteRange", err)
	}
	coveredBytes, err := io.ReadAll(signed)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidPDF, "failed to read ByteRange-covered bytes", err)
	}

	prepared := &tspdf.PreparedPdf{Alg: alg, DocumentHash: hashalg.Sum(alg, coveredBytes)}
	return tspdf.Validate(tokenDER, prepared, nil)
}

// signingCertificate picks the certificate most likely to be the one that
// actually signed the token, per verify/certificate.go's
// validateTimestampCertificate heuristic: the first certificate bearing
// the digital-signature key usage, falling back to the first certificate
// in the set when none is marked.
func signingCertificate(certs []*x509.Certificate) *x509.Certificate {
	for _, c := range certs {
		if c.KeyUsage&x509.KeyUsageDigitalSignature != 0 {
			return c
		}
	}
	if len(certs) > 0 {
		return certs[0]
	}
	return nil
}

func mergeLTVData(a, b ltv.LTVData) ltv.LTVData {
	return ltv.LTVData{
		Certs: dedupBlobs(a.Certs, b.Certs),
		CRLs:  dedupBlobs(a.CRLs, b.CRLs),
		OCSPs: dedupBlobs(a.OCSPs, b.OCSPs),
	}
}

func dedupBlobs(a, b [][]byte) [][]byte {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([][]byte, 0, len(a)+len(b))
	for _, blob := range append(append([][]byte{}, a...), b...) {
		key := string(blob)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, blob)
	}
	return out
}
