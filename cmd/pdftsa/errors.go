package main

import "github.com/mingulov/pdftsa/errs"

// classifyError maps a core error to one of the exit codes spec §6
// defines: validation (1), I/O (2), or TSA (3).
func classifyError(err error) int {
	switch {
	case errs.As(err, errs.InvalidPDF),
		errs.As(err, errs.UnsupportedAlgorithm),
		errs.As(err, errs.PlaceholderOverflow):
		return exitValidation
	case errs.As(err, errs.TSARejected),
		errs.As(err, errs.TSANetwork),
		errs.As(err, errs.InvalidResponse),
		errs.As(err, errs.HashMismatch):
		return exitTSA
	case errs.As(err, errs.LTVFetchFailed):
		return exitTSA
	default:
		return exitIO
	}
}
