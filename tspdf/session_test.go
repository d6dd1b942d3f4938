package tspdf

import (
	"testing"

	"github.com/mingulov/pdftsa/errs"
	"github.com/mingulov/pdftsa/tsaclient"
)

func TestSessionCreateTimestampRequestTwiceFails(t *testing.T) {
	s := NewSession([]byte(minimalPDF), Options{Now: fixedNow})

	if _, err := s.CreateTimestampRequest(); err != nil {
		t.Fatalf("first CreateTimestampRequest: %v", err)
	}
	if _, err := s.CreateTimestampRequest(); !errs.As(err, errs.InvalidPDF) {
		t.Fatalf("second CreateTimestampRequest error = %v, want INVALID_PDF", err)
	}
}

func TestSessionEmbedBeforeRequestFails(t *testing.T) {
	s := NewSession([]byte(minimalPDF), Options{Now: fixedNow})

	if _, err := s.EmbedTimestampToken([]byte{0x30, 0x03, 0x01, 0x01, 0xFF}); !errs.As(err, errs.InvalidPDF) {
		t.Fatalf("EmbedTimestampToken before request, error = %v, want INVALID_PDF", err)
	}
}

func TestSessionFailedEmbedDoesNotAdvanceState(t *testing.T) {
	s := NewSession([]byte(minimalPDF), Options{Now: fixedNow})
	if _, err := s.CreateTimestampRequest(); err != nil {
		t.Fatalf("CreateTimestampRequest: %v", err)
	}

	// The embed fails validation (the token below isn't a real TSTInfo),
	// and a failed embed must not move the session on to Embedded.
	if _, err := s.EmbedTimestampToken([]byte{0x30, 0x03, 0x01, 0x01, 0xFF}); err == nil {
		t.Fatal("expected the first EmbedTimestampToken call to fail validation")
	}
	if s.state == stateEmbedded {
		t.Fatal("state must not advance to Embedded on a failed validation")
	}
}

func TestTimestampPdfMultipleRequiresAtLeastOneTSA(t *testing.T) {
	_, err := TimestampPdfMultiple(nil, []byte(minimalPDF), nil, Options{})
	if !errs.As(err, errs.InvalidPDF) {
		t.Fatalf("TimestampPdfMultiple with no TSAs, error = %v, want INVALID_PDF", err)
	}
}

func TestTimestampPdfMultipleEmptySliceRequiresAtLeastOneTSA(t *testing.T) {
	_, err := TimestampPdfMultiple(nil, []byte(minimalPDF), []*tsaclient.Client{}, Options{})
	if !errs.As(err, errs.InvalidPDF) {
		t.Fatalf("TimestampPdfMultiple with empty TSA slice, error = %v, want INVALID_PDF", err)
	}
}
