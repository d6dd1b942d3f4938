package tspdf

import (
	"bytes"
	"encoding/hex"
	"math"

	"github.com/mingulov/pdftsa/errs"
)

// Embed copies prepared's buffer and writes token's hex encoding, right-padded
// with '0' to exactly fill the placeholder window, into the /Contents
// placeholder. It never shifts any byte outside the window, per spec §4.E.
func Embed(prepared *PreparedPdf, token []byte) ([]byte, error) {
	encoded := hex.EncodedLen(len(token))
	if encoded > prepared.PlaceholderLen {
		minSize := int(math.Ceil(float64(len(token)) * 1.1))
		return nil, errs.Overflow(minSize)
	}

	out := make([]byte, len(prepared.Bytes))
	copy(out, prepared.Bytes)

	window := out[prepared.ContentsOffset : prepared.ContentsOffset+prepared.PlaceholderLen]
	hex.Encode(window, token)
	padding := bytes.Repeat([]byte("0"), prepared.PlaceholderLen-encoded)
	copy(window[encoded:], padding)

	return out, nil
}
