package api

import (
	"encoding/hex"
	"fmt"

	"DagPool/internal/types"
)

const (
	// maxDigests caps the certificates removed by one request.
	maxDigests = 10_000

	// maxTransactions caps the transactions of one submitted batch.
	maxTransactions = 10_000
)

// validateBatch checks a submitted batch is non-empty and bounded.
func validateBatch(txs [][]byte) error {
	if len(txs) == 0 {
		return fmt.Errorf("empty batch")
	}

	if len(txs) > maxTransactions {
		return fmt.Errorf("too many transactions: %d > %d", len(txs), maxTransactions)
	}

	for i, tx := range txs {
		if len(tx) == 0 {
			return fmt.Errorf("transaction %d is empty", i)
		}
	}

	return nil
}

// parseDigests decodes hex certificate digests.
func parseDigests(raw []string) ([]types.CertificateDigest, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("no digests")
	}

	if len(raw) > maxDigests {
		return nil, fmt.Errorf("too many digests: %d > %d", len(raw), maxDigests)
	}

	ids := make([]types.CertificateDigest, len(raw))

	for i, s := range raw {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("digest %d: invalid hex", i)
		}

		if len(b) != types.DigestSize {
			return nil, fmt.Errorf("digest %d: expected %d bytes, got %d", i, types.DigestSize, len(b))
		}

		copy(ids[i][:], b)
	}

	return ids, nil
}
