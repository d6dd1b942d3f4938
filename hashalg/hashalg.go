// Package hashalg maps the symbolic digest algorithms this module accepts
// to their OIDs and to streaming hash.Hash constructors, per spec §4.B.
// Only SHA-256, SHA-384 and SHA-512 are offered; anything else is rejected
// at the boundary with errs.UnsupportedAlgorithm.
package hashalg

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/asn1"
	"hash"

	"github.com/mingulov/pdftsa/errs"
)

// Algorithm identifies a digest algorithm offered by this module.
type Algorithm int

const (
	// SHA256 is the default algorithm used when none is specified.
	SHA256 Algorithm = iota
	SHA384
	SHA512
)

var oids = map[Algorithm]asn1.ObjectIdentifier{
	SHA256: {2, 16, 840, 1, 101, 3, 4, 2, 1},
	SHA384: {2, 16, 840, 1, 101, 3, 4, 2, 2},
	SHA512: {2, 16, 840, 1, 101, 3, 4, 2, 3},
}

var names = map[Algorithm]string{
	SHA256: "SHA-256",
	SHA384: "SHA-384",
	SHA512: "SHA-512",
}

// OID returns the digest algorithm's object identifier.
func (a Algorithm) OID() asn1.ObjectIdentifier {
	return oids[a]
}

// String returns the conventional display name, e.g. "SHA-256".
func (a Algorithm) String() string {
	if name, ok := names[a]; ok {
		return name
	}
	return "unknown"
}

// New returns a fresh streaming hash.Hash for this algorithm.
func (a Algorithm) New() hash.Hash {
	switch a {
	case SHA384:
		return sha512.New384()
	case SHA512:
		return sha512.New()
	default:
		return sha256.New()
	}
}

// Size returns the digest size in bytes.
func (a Algorithm) Size() int {
	switch a {
	case SHA384:
		return sha512.Size384
	case SHA512:
		return sha512.Size
	default:
		return sha256.Size
	}
}

// Valid reports whether a is one of the algorithms this module offers.
func (a Algorithm) Valid() bool {
	_, ok := oids[a]
	return ok
}

// Parse maps a symbolic name ("SHA-256", "SHA256", "sha-384", ...) to an
// Algorithm. Unknown names return UnsupportedAlgorithm.
func Parse(name string) (Algorithm, error) {
	switch normalize(name) {
	case "sha256":
		return SHA256, nil
	case "sha384":
		return SHA384, nil
	case "sha512":
		return SHA512, nil
	default:
		return 0, errs.New(errs.UnsupportedAlgorithm, "unsupported digest algorithm: "+name)
	}
}

// FromOID maps a digest algorithm OID to an Algorithm. Unknown OIDs return
// UnsupportedAlgorithm.
func FromOID(oid asn1.ObjectIdentifier) (Algorithm, error) {
	for alg, candidate := range oids {
		if candidate.Equal(oid) {
			return alg, nil
		}
	}
	return 0, errs.New(errs.UnsupportedAlgorithm, "unsupported digest algorithm OID: "+oid.String())
}

func normalize(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '-' || c == '_' || c == ' ':
			continue
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// Sum computes the digest of data using the given algorithm.
func Sum(a Algorithm, data []byte) []byte {
	h := a.New()
	h.Write(data)
	return h.Sum(nil)
}
