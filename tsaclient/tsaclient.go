// Package tsaclient implements the RFC 3161 HTTP time-stamp protocol: it
// builds a TimeStampReq, posts it to a TSA over HTTP(S), and validates the
// response's PKIStatusInfo and nonce echo before handing the caller the raw
// token bytes to parse. Grounded on the TSA round trip in
// sign/pdfsignature.go's GetTSA, generalized into a reusable client with an
// injectable http.Client/transport so tests never touch the network.
package tsaclient

import (
	"bytes"
	"context"
	"encoding/asn1"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/mingulov/pdftsa/errs"
	"github.com/mingulov/pdftsa/hashalg"
	"github.com/mingulov/pdftsa/internal/der"
)

const (
	contentTypeRequest  = "application/timestamp-query"
	contentTypeResponse = "application/timestamp-reply"

	defaultTimeout    = 30 * time.Second
	defaultRetries    = 3
	defaultRetryDelay = time.Second
)

// Client requests RFC 3161 timestamps from a single TSA endpoint.
type Client struct {
	// URL is the TSA's HTTP(S) endpoint.
	URL string
	// Username and Password enable HTTP basic auth, when the TSA requires
	// it (several commercial TSAs do).
	Username, Password string
	// Policy, when non-nil, is sent as the request's TSAPolicyId.
	Policy asn1.ObjectIdentifier
	// CertReq asks the TSA to embed its signing certificate in the token.
	CertReq bool

	// HTTPClient is used to perform the request; defaults to a client
	// with a 30s timeout when nil.
	HTTPClient *http.Client
	// Retries is the number of additional attempts after a network-level
	// failure (connection refused, timeout, 5xx); defaults to 3.
	Retries int
	// RetryDelay is the base delay between retries; defaults to 1s.
	RetryDelay time.Duration
}

// Response is a validated TSA response: its token, if granted, along with
// the status the TSA reported.
type Response struct {
	Status PKIStatus
	// Token is the raw DER of the TimeStampToken ContentInfo, present only
	// when Status.Granted().
	Token []byte
}

// PKIStatus mirrors the RFC 3161 PKIStatusInfo for callers that don't want
// to import the internal codec package directly.
type PKIStatus struct {
	Code         int
	StatusString []string
	FailInfo     int
}

// Granted reports whether the TSA issued a token.
func (s PKIStatus) Granted() bool {
	return s.Code == der.StatusGranted || s.Code == der.StatusGrantedWithMods
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func (c *Client) retries() int {
	if c.Retries > 0 {
		return c.Retries
	}
	return defaultRetries
}

func (c *Client) retryDelay() time.Duration {
	if c.RetryDelay > 0 {
		return c.RetryDelay
	}
	return defaultRetryDelay
}

// Timestamp sends digest (already hashed with alg) to the TSA and returns
// the validated response. A request nonce is always included and checked
// against the response's echo, per RFC 3161 §2.4.1.
func (c *Client) Timestamp(ctx context.Context, alg hashalg.Algorithm, digest []byte) (*Response, error) {
	imprint := der.NewMessageImprint(alg.OID(), digest)
	reqDER, nonce, err := der.EncodeTimeStampReq(imprint, der.BuildTimeStampReqOptions{
		Policy:  c.Policy,
		CertReq: c.CertReq,
		Nonce:   true,
	})
	if err != nil {
		return nil, err
	}

	var respBody []byte
	var lastErr error
	for attempt := 0; attempt <= c.retries(); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errs.Wrap(errs.TSANetwork, "context cancelled while retrying TSA request", ctx.Err())
			case <-time.After(c.retryDelay() * time.Duration(attempt)):
			}
		}
		var retryable bool
		respBody, retryable, lastErr = c.do(ctx, reqDER)
		if lastErr == nil || !retryable {
			break
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	return parseResponse(respBody, nonce)
}

func (c *Client) do(ctx context.Context, reqDER []byte) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(reqDER))
	if err != nil {
		return nil, false, errs.Wrap(errs.TSANetwork, "failed to build TSA request", err)
	}
	req.Header.Set("Content-Type", contentTypeRequest)
	req.Header.Set("Content-Transfer-Encoding", "binary")
	if c.Username != "" && c.Password != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, true, errs.Wrap(errs.TSANetwork, "TSA request failed", err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, errs.Wrap(errs.TSANetwork, "failed to read TSA response body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode >= 500, errs.New(errs.TSANetwork, "TSA returned HTTP "+resp.Status)
	}
	// Some TSAs (notably older FreeTSA deployments) send the reply with a
	// generic content-type; the status code is authoritative, the
	// content-type header is advisory only.
	return body, false, nil
}

func parseResponse(body []byte, nonce *big.Int) (*Response, error) {
	if len(body) == 0 {
		return nil, errs.New(errs.InvalidResponse, "empty TSA response body")
	}
	var resp der.TimeStampResp
	rest, err := asn1.Unmarshal(body, &resp)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidResponse, "malformed TimeStampResp", err)
	}
	if len(rest) != 0 {
		return nil, errs.WithOffset(errs.InvalidResponse, "trailing bytes after TimeStampResp", len(body)-len(rest))
	}

	status := PKIStatus{
		Code:         resp.Status.Status,
		StatusString: resp.Status.StatusString,
	}
	if resp.Status.FailInfo.BitLength > 0 {
		status.FailInfo = failInfoBits(resp.Status.FailInfo)
	}

	if !status.Granted() {
		return nil, errs.Rejected(status.FailInfo, status.StatusString)
	}
	if !resp.HasToken() {
		return nil, errs.New(errs.InvalidResponse, "TSA granted status but included no timeStampToken")
	}

	if nonce != nil {
		if err := verifyNonceEcho(resp.RawToken.FullBytes, nonce); err != nil {
			return nil, err
		}
	}

	return &Response{Status: status, Token: resp.RawToken.FullBytes}, nil
}

func verifyNonceEcho(tokenDER []byte, want *big.Int) error {
	ci, err := der.ParseContentInfo(tokenDER)
	if err != nil {
		return err
	}
	sd, err := ci.SignedData()
	if err != nil {
		return err
	}
	info, err := sd.TSTInfo()
	if err != nil {
		return err
	}
	if info.Nonce == nil {
		return errs.New(errs.InvalidResponse, "TSA response did not echo the request nonce")
	}
	if info.Nonce.Cmp(want) != 0 {
		return errs.New(errs.InvalidResponse, "TSA response nonce does not match the request")
	}
	return nil
}

func failInfoBits(bs interface{ At(int) int }) int {
	var mask int
	for i := 0; i < 32; i++ {
		if bs.At(i) == 1 {
			mask |= 1 << uint(i)
		}
	}
	return mask
}
