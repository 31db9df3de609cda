package types

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// DigestSize is the size of every content hash in bytes.
const DigestSize = 32

// Digest is a blake3 content hash.
type Digest [DigestSize]byte

// String returns the full hex encoding.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first four bytes in hex, for logs.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:4])
}

// HashBytes returns the blake3 digest of data.
func HashBytes(data []byte) Digest {
	return blake3.Sum256(data)
}

// CertificateDigest identifies a Certificate.
type CertificateDigest Digest

func (d CertificateDigest) String() string { return Digest(d).String() }

// Short returns an abbreviated hex form for logs.
func (d CertificateDigest) Short() string { return Digest(d).Short() }

// HeaderDigest identifies a Header.
type HeaderDigest Digest

func (d HeaderDigest) String() string { return Digest(d).String() }

// Short returns an abbreviated hex form for logs.
func (d HeaderDigest) Short() string { return Digest(d).Short() }

// BatchDigest identifies a batch of transactions held by a worker.
type BatchDigest Digest

func (d BatchDigest) String() string { return Digest(d).String() }

// Short returns an abbreviated hex form for logs.
func (d BatchDigest) Short() string { return Digest(d).Short() }

// PublicKey is an ed25519 public key identifying an authority or a worker.
type PublicKey [ed25519.PublicKeySize]byte

// PublicKeyFrom copies an ed25519 key into a PublicKey.
func PublicKeyFrom(pk ed25519.PublicKey) (PublicKey, error) {
	var out PublicKey
	if len(pk) != len(out) {
		return out, fmt.Errorf("invalid public key size: got %d, want %d", len(pk), len(out))
	}

	copy(out[:], pk)

	return out, nil
}

// ParsePublicKey decodes a hex encoded ed25519 public key.
func ParsePublicKey(s string) (PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("decode public key:\n%w", err)
	}

	return PublicKeyFrom(raw)
}

// Ed25519 returns the key as an ed25519.PublicKey.
func (pk PublicKey) Ed25519() ed25519.PublicKey {
	return ed25519.PublicKey(pk[:])
}

func (pk PublicKey) String() string {
	return hex.EncodeToString(pk[:])
}

// Short returns an abbreviated hex form for logs.
func (pk PublicKey) Short() string {
	return hex.EncodeToString(pk[:4])
}

// digestsFromBytes splits a concatenation of digests.
func digestsFromBytes(raw []byte) ([]Digest, error) {
	if len(raw)%DigestSize != 0 {
		return nil, fmt.Errorf("digest list length %d is not a multiple of %d", len(raw), DigestSize)
	}

	out := make([]Digest, len(raw)/DigestSize)
	for i := range out {
		copy(out[i][:], raw[i*DigestSize:])
	}

	return out, nil
}
