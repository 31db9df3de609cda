package store

import (
	"fmt"

	"DagPool/internal/storage"
	"DagPool/internal/types"
)

const certificateStoreName = "certificate"

// CertificateStore keeps certificates by digest. It is the authoritative
// record of which certificates exist.
type CertificateStore struct {
	db Backend
}

// NewCertificateStore creates a certificate store over db.
func NewCertificateStore(db Backend) *CertificateStore {
	return &CertificateStore{db: db}
}

// Write stores a certificate under its digest.
func (s *CertificateStore) Write(cert *types.Certificate) error {
	d := cert.Digest()

	if err := s.db.Set(certificateKey(d), types.EncodeCertificate(cert)); err != nil {
		return &Error{Store: certificateStoreName, Op: "write", Err: err}
	}

	return nil
}

// WriteAll stores certificates in one atomic batch.
func (s *CertificateStore) WriteAll(certs []*types.Certificate) error {
	pairs := make([]storage.KeyValue, len(certs))
	for i, c := range certs {
		pairs[i] = storage.KeyValue{Key: certificateKey(c.Digest()), Value: types.EncodeCertificate(c)}
	}

	if err := s.db.SetBatch(pairs); err != nil {
		return &Error{Store: certificateStoreName, Op: "write", Err: err}
	}

	return nil
}

// Read returns the certificate with the given digest, or nil.
func (s *CertificateStore) Read(id types.CertificateDigest) (*types.Certificate, error) {
	certs, err := s.ReadAll([]types.CertificateDigest{id})
	if err != nil {
		return nil, err
	}

	return certs[0], nil
}

// ReadAll returns one entry per id, nil where the certificate is absent.
func (s *CertificateStore) ReadAll(ids []types.CertificateDigest) ([]*types.Certificate, error) {
	keys := make([][]byte, len(ids))
	for i, id := range ids {
		keys[i] = certificateKey(id)
	}

	values, err := s.db.GetMany(keys)
	if err != nil {
		return nil, &Error{Store: certificateStoreName, Op: "read", Err: err}
	}

	certs := make([]*types.Certificate, len(ids))
	for i, v := range values {
		if v == nil {
			continue
		}

		c, err := types.DecodeCertificate(v)
		if err != nil {
			return nil, &Error{
				Store: certificateStoreName,
				Op:    "read",
				Err:   fmt.Errorf("decode %s:\n%w", ids[i].Short(), err),
			}
		}
		certs[i] = c
	}

	return certs, nil
}

// Contains reports whether a certificate is stored.
func (s *CertificateStore) Contains(id types.CertificateDigest) (bool, error) {
	v, err := s.db.Get(certificateKey(id))
	if err != nil {
		return false, &Error{Store: certificateStoreName, Op: "read", Err: err}
	}

	return v != nil, nil
}

// DeleteAll removes certificates and waits for the write to be durable.
// Absent ids are ignored.
func (s *CertificateStore) DeleteAll(ids []types.CertificateDigest) error {
	keys := make([][]byte, len(ids))
	for i, id := range ids {
		keys[i] = certificateKey(id)
	}

	if err := s.db.DeleteBatchSync(keys); err != nil {
		return &Error{Store: certificateStoreName, Op: "delete", Err: err}
	}

	return nil
}

// Iterate calls fn for every stored certificate, in digest order.
func (s *CertificateStore) Iterate(fn func(*types.Certificate) error) error {
	err := s.db.IteratePrefix(prefixCertificate, func(_, value []byte) error {
		c, err := types.DecodeCertificate(value)
		if err != nil {
			return err
		}

		return fn(c)
	})
	if err != nil {
		return &Error{Store: certificateStoreName, Op: "iterate", Err: err}
	}

	return nil
}

func certificateKey(id types.CertificateDigest) []byte {
	return prefixed(prefixCertificate, id[:])
}
