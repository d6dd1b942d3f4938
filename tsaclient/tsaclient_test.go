package tsaclient

import (
	"bytes"
	"context"
	"encoding/asn1"
	"io"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/mingulov/pdftsa/errs"
	"github.com/mingulov/pdftsa/hashalg"
	"github.com/mingulov/pdftsa/internal/der"
)

// roundTripperFunc adapts a function to http.RoundTripper, the standard way
// to stub an *http.Client in tests without touching the network.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(rt roundTripperFunc) *Client {
	return &Client{
		URL:        "https://tsa.example.test/tsr",
		HTTPClient: &http.Client{Transport: rt},
		Retries:    0,
	}
}

func bodyResponse(status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

// grantedResponseFor builds a valid DER TimeStampResp granting a token that
// echoes the nonce and messageImprint of req.
func grantedResponseFor(t *testing.T, req []byte) []byte {
	t.Helper()
	var parsedReq der.TimeStampReq
	if _, err := asn1.Unmarshal(req, &parsedReq); err != nil {
		t.Fatalf("failed to parse request built by client under test: %v", err)
	}

	info := der.TSTInfo{
		Version:        1,
		Policy:         asn1.ObjectIdentifier{1, 2, 3, 4},
		MessageImprint: parsedReq.MessageImprint,
		SerialNumber:   bigOne(),
		GenTime:        time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		Nonce:          parsedReq.Nonce,
	}
	infoDER, err := asn1.Marshal(info)
	if err != nil {
		t.Fatalf("marshal TSTInfo: %v", err)
	}

	sd := der.SignedData{
		Version: 3,
		DigestAlgorithms: []der.AlgorithmIdentifier{
			{Algorithm: asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}},
		},
		EncapContentInfo: der.EncapsulatedContentInfo{
			EContentType: der.OIDTimeStampTokenContent,
			EContent:     infoDER,
		},
	}
	sdDER, err := asn1.Marshal(sd)
	if err != nil {
		t.Fatalf("marshal SignedData: %v", err)
	}

	ci := der.ContentInfo{
		ContentType: der.OIDSignedData,
		Content:     asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: sdDER},
	}
	tokenDER, err := asn1.Marshal(ci)
	if err != nil {
		t.Fatalf("marshal ContentInfo: %v", err)
	}

	resp := der.TimeStampResp{
		Status:   der.PKIStatusInfo{Status: der.StatusGranted},
		RawToken: asn1.RawValue{FullBytes: tokenDER},
	}
	respDER, err := asn1.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal TimeStampResp: %v", err)
	}
	return respDER
}

func bigOne() *big.Int { return big.NewInt(1) }

func TestClientTimestampGranted(t *testing.T) {
	rt := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("Content-Type"); got != contentTypeRequest {
			t.Errorf("Content-Type = %q, want %q", got, contentTypeRequest)
		}
		body, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		return bodyResponse(http.StatusOK, grantedResponseFor(t, body)), nil
	})
	client := newTestClient(rt)

	resp, err := client.Timestamp(context.Background(), hashalg.SHA256, bytes.Repeat([]byte{0x11}, 32))
	if err != nil {
		t.Fatalf("Timestamp: %v", err)
	}
	if !resp.Status.Granted() {
		t.Errorf("Status.Granted() = false, want true")
	}
	if len(resp.Token) == 0 {
		t.Error("expected a non-empty token")
	}
}

func TestClientTimestampRejected(t *testing.T) {
	rt := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		resp := der.TimeStampResp{
			Status: der.PKIStatusInfo{
				Status:       der.StatusRejection,
				StatusString: []string{"unsupported algorithm"},
			},
		}
		respDER, err := asn1.Marshal(resp)
		if err != nil {
			t.Fatalf("marshal rejection: %v", err)
		}
		return bodyResponse(http.StatusOK, respDER), nil
	})
	client := newTestClient(rt)

	_, err := client.Timestamp(context.Background(), hashalg.SHA256, bytes.Repeat([]byte{0x22}, 32))
	if !errs.As(err, errs.TSARejected) {
		t.Fatalf("Timestamp error = %v, want TSA_REJECTED", err)
	}
}

func TestClientTimestampEmptyResponse(t *testing.T) {
	rt := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return bodyResponse(http.StatusOK, nil), nil
	})
	client := newTestClient(rt)

	_, err := client.Timestamp(context.Background(), hashalg.SHA256, bytes.Repeat([]byte{0x33}, 32))
	if !errs.As(err, errs.InvalidResponse) {
		t.Fatalf("Timestamp error = %v, want INVALID_RESPONSE", err)
	}
}

func TestClientTimestampHTTPErrorRetries(t *testing.T) {
	attempts := 0
	rt := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		attempts++
		return bodyResponse(http.StatusInternalServerError, []byte("down")), nil
	})
	client := newTestClient(rt)
	client.Retries = 2
	client.RetryDelay = time.Millisecond

	_, err := client.Timestamp(context.Background(), hashalg.SHA256, bytes.Repeat([]byte{0x44}, 32))
	if !errs.As(err, errs.TSANetwork) {
		t.Fatalf("Timestamp error = %v, want TSA_NETWORK", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (1 initial + 2 retries)", attempts)
	}
}
