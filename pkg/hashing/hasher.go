// Package hashing computes content digests for files under watch by
// fscrawl. Three algorithms are supported: MD5 and SHA1 (delegated to the
// standard library) and TTH, the Tiger Tree Hash used by direct-connect
// style file sharing tools (implemented in the sibling tiger package, since
// no third-party Go implementation exists).
package hashing

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/flesniak/fscrawl/pkg/hashing/tiger"
)

// Algorithm identifies a supported hash algorithm.
type Algorithm uint8

const (
	// None disables hashing entirely.
	None Algorithm = iota
	// MD5 computes a standard 128-bit MD5 digest, hex-encoded.
	MD5
	// SHA1 computes a standard 160-bit SHA1 digest, hex-encoded.
	SHA1
	// TTH computes a Tiger Tree Hash, Base32-encoded.
	TTH
)

// String returns the algorithm's name as used on the command line.
func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case MD5:
		return "md5"
	case SHA1:
		return "sha1"
	case TTH:
		return "tth"
	default:
		return fmt.Sprintf("Algorithm(%d)", uint8(a))
	}
}

// Hasher computes content digests using a fixed algorithm.
type Hasher struct {
	algorithm Algorithm
}

// New creates a Hasher for the given algorithm. Passing None yields a
// Hasher whose Hash method always returns an empty digest without touching
// the filesystem.
func New(algorithm Algorithm) *Hasher {
	return &Hasher{algorithm: algorithm}
}

// Algorithm reports the algorithm this Hasher was constructed with.
func (h *Hasher) Algorithm() Algorithm {
	if h == nil {
		return None
	}
	return h.algorithm
}

// Hash computes the digest of the file at path. It returns an empty string
// without error if hashing is disabled.
func (h *Hasher) Hash(path string) (string, error) {
	if h == nil || h.algorithm == None {
		return "", nil
	}

	if h.algorithm == TTH {
		return tiger.HashFile(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	var digest hash.Hash
	switch h.algorithm {
	case MD5:
		digest = md5.New()
	case SHA1:
		digest = sha1.New()
	default:
		return "", fmt.Errorf("unsupported hash algorithm %v", h.algorithm)
	}

	if _, err := io.Copy(digest, f); err != nil {
		return "", fmt.Errorf("read %q: %w", path, err)
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}
