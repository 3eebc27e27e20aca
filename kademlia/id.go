// Package kademlia implements the identifier arithmetic, k-bucket, and
// routing table at the core of the DHT.
package kademlia

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"errors"
	"math/bits"
	"strings"
)

// IdLength is the width, in bytes, of an Id (128 bits).
const IdLength = 16

// Id is a 128-bit identifier with no intrinsic semantics: the same type
// represents both node identifiers and key hashes. It is used only through
// its distance metric and bucket-index arithmetic.
type Id [IdLength]byte

// Distance returns the XOR distance between two identifiers. XOR is a true
// metric: non-negative, zero iff equal, symmetric, and triangle-inequal.
func (a Id) Distance(b Id) Id {
	var out Id
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// Equal reports whether two identifiers are bit-for-bit identical.
func (a Id) Equal(b Id) bool {
	return a == b
}

// IsZero reports whether the identifier is the all-zero value.
func (a Id) IsZero() bool {
	return a == Id{}
}

// Less orders identifiers by big-endian byte value, i.e. as unsigned 128-bit
// integers. Applied to XOR distances, it is the comparison behind every
// "closest to target" ordering in this codebase.
func (a Id) Less(b Id) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// LeadingZeros returns the number of leading zero bits in the identifier,
// interpreted as a big-endian 128-bit integer. A value of IdLength*8 (128)
// means the identifier is entirely zero.
func (a Id) LeadingZeros() int {
	for i, b := range a {
		if b != 0 {
			return i*8 + bits.LeadingZeros8(b)
		}
	}
	return IdLength * 8
}

var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// String renders the identifier as lowercase, unpadded base32 — the same
// alphabet and padding convention used for logs and the CLI throughout this
// codebase, so an id can always be round-tripped through ParseId.
func (a Id) String() string {
	return strings.ToLower(idEncoding.EncodeToString(a[:]))
}

// ParseId parses the string form produced by Id.String.
func ParseId(s string) (Id, error) {
	var id Id
	decoded, err := idEncoding.DecodeString(strings.ToUpper(s))
	if err != nil {
		return id, err
	}
	if len(decoded) != IdLength {
		return id, errors.New("kademlia: decoded id must be exactly 16 bytes")
	}
	copy(id[:], decoded)
	return id, nil
}

// NewRandomId samples a uniformly distributed identifier. Used to mint a
// node's own identifier at birth.
func NewRandomId() (Id, error) {
	var id Id
	if _, err := rand.Read(id[:]); err != nil {
		return id, err
	}
	return id, nil
}

// HashKey derives a key identifier from an arbitrary string key by taking
// the low 128 bits of its SHA-1 digest, big-endian.
func HashKey(key string) Id {
	sum := sha1.Sum([]byte(key))
	var id Id
	// sha1.Sum is 20 bytes; keep the low 16 (last IdLength bytes).
	copy(id[:], sum[len(sum)-IdLength:])
	return id
}
