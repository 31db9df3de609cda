package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"

	"DagPool/internal/crypto"
)

var (
	// ErrNoQuorum means the signer bitmap holds fewer signers than required.
	ErrNoQuorum = errors.New("certificate lacks a quorum of signers")

	// ErrBadSignature means the aggregated signature does not verify.
	ErrBadSignature = errors.New("invalid aggregated signature")
)

// Certificate is a header endorsed by a quorum of authorities.
type Certificate struct {
	Header    Header
	Signers   []byte // Signers has bit i set when committee member i signed
	Signature []byte // Signature is the aggregated BLS signature over the header digest
}

// Digest identifies the certificate by its header digest, round, epoch and author.
func (c *Certificate) Digest() CertificateDigest {
	hasher := blake3.New()

	headerDigest := c.Header.Digest()
	hasher.Write(headerDigest[:])

	buf := make([]byte, 0, 8)
	hasher.Write(binary.BigEndian.AppendUint64(buf[:0], c.Header.Round))
	hasher.Write(binary.BigEndian.AppendUint64(buf[:0], c.Header.Epoch))
	hasher.Write(c.Header.Author[:])

	var d CertificateDigest
	hasher.Sum(d[:0])

	return d
}

// Round is the round of the certified header.
func (c *Certificate) Round() uint64 {
	return c.Header.Round
}

// Certify aggregates votes (committee index -> signature over the header
// digest) into a certificate. total is the committee size.
func Certify(header Header, votes map[int][]byte, total int) (*Certificate, error) {
	indices := make([]int, 0, len(votes))
	for idx := range votes {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	sigs := make([][]byte, len(indices))
	for i, idx := range indices {
		sigs[i] = votes[idx]
	}

	agg, err := crypto.Aggregate(sigs)
	if err != nil {
		return nil, fmt.Errorf("aggregate votes:\n%w", err)
	}

	return &Certificate{
		Header:    header,
		Signers:   crypto.SignerBitmap(indices, total),
		Signature: agg,
	}, nil
}

// Verify checks the aggregated signature against the committee's BLS keys,
// indexed by committee position, and that at least quorum members signed.
func (c *Certificate) Verify(committeeKeys [][]byte, quorum int) error {
	signers := crypto.Signers(c.Signers)

	keys := make([][]byte, 0, len(signers))
	for _, idx := range signers {
		if idx >= len(committeeKeys) {
			return fmt.Errorf("signer index %d outside committee of %d", idx, len(committeeKeys))
		}
		keys = append(keys, committeeKeys[idx])
	}

	if len(keys) < quorum {
		return fmt.Errorf("%w: %d < %d", ErrNoQuorum, len(keys), quorum)
	}

	digest := c.Header.Digest()
	if !crypto.VerifyAggregated(c.Signature, digest[:], keys) {
		return ErrBadSignature
	}

	return nil
}
