package tspdf

import (
	"context"
	"fmt"

	"github.com/mingulov/pdftsa/errs"
	"github.com/mingulov/pdftsa/internal/der"
	"github.com/mingulov/pdftsa/tsaclient"
)

// CreateTimestampRequest prepares the PDF's placeholder signature and
// returns the RFC 3161 TimeStampReq DER a caller should transport to a TSA
// out-of-band (e.g. a TSA reachable only via a channel this package knows
// nothing about). It may be called only on a Fresh session.
func (s *TimestampSession) CreateTimestampRequest() ([]byte, error) {
	if s.state != stateFresh {
		return nil, errs.New(errs.InvalidPDF, "CreateTimestampRequest called on a session that already issued a request")
	}

	prepared, err := Prepare(s.input, s.opts)
	if err != nil {
		return nil, err
	}

	alg := s.opts.Alg
	if alg == 0 {
		alg = prepared.Alg
	}
	imprint := der.NewMessageImprint(alg.OID(), prepared.DocumentHash)
	reqDER, nonce, err := der.EncodeTimeStampReq(imprint, der.BuildTimeStampReqOptions{
		Policy:  s.opts.Policy,
		CertReq: true,
		Nonce:   true,
	})
	if err != nil {
		return nil, err
	}

	s.prepared = prepared
	s.nonce = nonce
	s.state = stateRequestIssued
	return reqDER, nil
}

// EmbedTimestampToken validates the TSA's TimeStampToken DER (the
// ContentInfo carried inside a TimeStampResp; a whole TimeStampResp is not
// accepted) against the request this session issued and embeds it into the
// prepared PDF. It may be called only after CreateTimestampRequest, and not
// again once it has succeeded; a failed call leaves the session unchanged.
func (s *TimestampSession) EmbedTimestampToken(tokenDER []byte) (*Result, error) {
	if s.state != stateRequestIssued {
		return nil, errs.New(errs.InvalidPDF, "EmbedTimestampToken called before CreateTimestampRequest, or twice")
	}

	token, err := Validate(tokenDER, s.prepared, s.nonce)
	if err != nil {
		return nil, err
	}

	out, err := Embed(s.prepared, token.Raw)
	if err != nil {
		return nil, err
	}

	s.state = stateEmbedded
	return &Result{PDF: out, Timestamp: *token}, nil
}

// TimestampPdf is the one-shot helper described in spec §4.H: prepare,
// request, validate, and embed in a single call against a live TSA.
func TimestampPdf(ctx context.Context, pdf []byte, tsa *tsaclient.Client, opts Options) (*Result, error) {
	prepared, err := Prepare(pdf, opts)
	if err != nil {
		return nil, err
	}

	alg := opts.Alg
	if alg == 0 {
		alg = prepared.Alg
	}
	resp, err := tsa.Timestamp(ctx, alg, prepared.DocumentHash)
	if err != nil {
		return nil, err
	}
	if !resp.Status.Granted() {
		return nil, errs.Rejected(resp.Status.FailInfo, resp.Status.StatusString)
	}

	token, err := Validate(resp.Token, prepared, nil)
	if err != nil {
		return nil, err
	}

	out, err := Embed(prepared, token.Raw)
	if err != nil {
		return nil, err
	}

	return &Result{PDF: out, Timestamp: *token}, nil
}

// TimestampPdfMultiple applies one DocTimeStamp per tsa in order, each
// round timestamping the previous round's output. Per spec §9's Design
// Notes, every round gets a distinct field name (Timestamp1, Timestamp2,
// ...) so later rounds never collide with an earlier round's signature
// field; a caller-supplied opts.FieldName is honored only for the first
// round.
func TimestampPdfMultiple(ctx context.Context, pdf []byte, tsas []*tsaclient.Client, opts Options) (*Result, error) {
	if len(tsas) == 0 {
		return nil, errs.New(errs.InvalidPDF, "TimestampPdfMultiple requires at least one TSA")
	}

	var last Result
	last.PDF = pdf
	for i, tsa := range tsas {
		roundOpts := opts
		if i > 0 || roundOpts.FieldName == "" {
			roundOpts.FieldName = fmt.Sprintf("Timestamp%d", i+1)
		}

		result, err := TimestampPdf(ctx, last.PDF, tsa, roundOpts)
		if err != nil {
			return nil, err
		}
		last = *result
	}

	return &last, nil
}
