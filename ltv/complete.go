package ltv

import (
	"bytes"
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/crypto/ocsp"
)

// Complete fetches OCSP/CRL material for each certificate in chain, in
// order, and returns it merged with have and with chain's certificates. A
// fetch is made for every certificate in chain whether or not have already
// holds material for it. issuerOf resolves a certificate's issuer from
// within the same chain (nil if unknown). OCSP is tried only when the
// certificate lists an OCSP server and its issuer is known; otherwise the
// certificate's CRL distribution points are used. Network failures are collected as
// warnings rather than aborting the operation, and the whole call is
// bounded by opts.Budget, per spec §4.G.
//
// Grounded on sign/revocation.go's embedOCSPRevocationStatus /
// embedCRLRevocationStatus for the request shape, and
// verify/external_revocation.go's performExternalOCSPCheck /
// performExternalCRLCheck for the multi-URL retry loop and bounded client.
func Complete(ctx context.Context, chain []*x509.Certificate, issuerOf func(*x509.Certificate) *x509.Certificate, have LTVData, opts Options) (LTVData, []FetchWarning) {
	ctx, cancel := context.WithTimeout(ctx, opts.budget())
	defer cancel()

	certs := newCertSet()
	for _, c := range chain {
		certs.add(c.Raw, c)
	}
	for _, raw := range have.Certs {
		if cert, err := x509.ParseCertificate(raw); err == nil {
			certs.add(raw, cert)
		}
	}

	crls := newBlobSet()
	for _, c := range have.CRLs {
		crls.add(c)
	}
	ocsps := newBlobSet()
	for _, c := range have.OCSPs {
		ocsps.add(c)
	}

	client := opts.httpClient()
	var warnings []FetchWarning

	for _, cert := range chain {
		if ctx.Err() != nil {
			warnings = append(warnings, FetchWarning{Subject: cert.Subject.String(), Err: ctx.Err()})
			break
		}
		issuer := issuerOf(cert)

		switch {
		case len(cert.OCSPServer) > 0 && issuer != nil:
			resp, err := fetchOCSP(ctx, client, cert, issuer)
			if err != nil {
				warnings = append(warnings, FetchWarning{Subject: cert.Subject.String(), Err: err})
				break
			}
			ocsps.add(resp)
		case len(cert.CRLDistributionPoints) > 0:
			resp, err := fetchCRL(ctx, client, cert)
			if err != nil {
				warnings = append(warnings, FetchWarning{Subject: cert.Subject.String(), Err: err})
				break
			}
			crls.add(resp)
		default:
			warnings = append(warnings, FetchWarning{
				Subject: cert.Subject.String(),
				Err:     fmt.Errorf("certificate contains no OCSP or CRL distribution point"),
			})
		}
	}

	return LTVData{Certs: certs.der(), CRLs: crls.order, OCSPs: ocsps.order}, warnings
}

func fetchOCSP(ctx context.Context, client *http.Client, cert, issuer *x509.Certificate) ([]byte, error) {
	reqDER, err := ocsp.CreateRequest(cert, issuer, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build OCSP request: %w", err)
	}

	var lastErr error
	for _, serverURL := range cert.OCSPServer {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL, bytes.NewReader(reqDER))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/ocsp-request")

		body, err := doAndRead(client, req)
		if err != nil {
			lastErr = err
			continue
		}
		if _, err := ocsp.ParseResponseForCert(body, cert, issuer); err != nil {
			lastErr = fmt.Errorf("invalid OCSP response from %s: %w", serverURL, err)
			continue
		}
		return body, nil
	}
	return nil, lastErr
}

func fetchCRL(ctx context.Context, client *http.Client, cert *x509.Certificate) ([]byte, error) {
	var lastErr error
	for _, crlURL := range cert.CRLDistributionPoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, crlURL, nil)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := doAndRead(client, req)
		if err != nil {
			lastErr = err
			continue
		}
		if _, err := x509.ParseRevocationList(body); err != nil {
			lastErr = fmt.Errorf("invalid CRL from %s: %w", crlURL, err)
			continue
		}
		return body, nil
	}
	return nil, lastErr
}

func doAndRead(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", req.URL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
