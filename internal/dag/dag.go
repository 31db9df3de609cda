// Package dag keeps the certificates a primary has accepted together with
// their parent edges, and removes them without leaving dangling children.
package dag

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"DagPool/internal/config"
	"DagPool/internal/types"
)

var (
	// ErrStillReferenced means a certificate to remove has a child that stays.
	ErrStillReferenced = errors.New("certificate still referenced by a live child")

	// ErrWrongEpoch means a certificate belongs to another committee epoch.
	ErrWrongEpoch = errors.New("certificate from another epoch")

	// ErrUnknownAuthor means the certificate author is not a committee member.
	ErrUnknownAuthor = errors.New("certificate author not in committee")
)

// node is one accepted certificate.
type node struct {
	cert *types.Certificate
}

// Dag is an in-memory certificate DAG safe for concurrent use.
type Dag struct {
	committee *config.Committee

	mu    sync.RWMutex
	nodes map[types.CertificateDigest]*node

	// children maps a parent digest to the certificates naming it.
	// Entries exist even while the parent itself is not in the DAG.
	children map[types.CertificateDigest]map[types.CertificateDigest]struct{}
}

// Option configures the Dag during creation.
type Option func(*Dag)

// WithCommittee makes Insert verify certificates against the committee.
func WithCommittee(c *config.Committee) Option {
	return func(d *Dag) {
		d.committee = c
	}
}

// New creates an empty DAG.
func New(opts ...Option) *Dag {
	d := &Dag{
		nodes:    make(map[types.CertificateDigest]*node),
		children: make(map[types.CertificateDigest]map[types.CertificateDigest]struct{}),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Insert adds a certificate. Parents need not be present.
// Returns false if the certificate was already in the DAG.
func (d *Dag) Insert(cert *types.Certificate) (bool, error) {
	if err := d.verify(cert); err != nil {
		return false, err
	}

	digest := cert.Digest()

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.nodes[digest]; ok {
		return false, nil
	}

	d.nodes[digest] = &node{cert: cert}

	for _, parent := range cert.Header.Parents {
		kids := d.children[parent]
		if kids == nil {
			kids = make(map[types.CertificateDigest]struct{})
			d.children[parent] = kids
		}
		kids[digest] = struct{}{}
	}

	return true, nil
}

// verify checks the certificate against the committee, if one is set.
func (d *Dag) verify(cert *types.Certificate) error {
	if d.committee == nil {
		return nil
	}

	if cert.Header.Epoch != d.committee.Epoch {
		return fmt.Errorf("%w: %d, committee is at %d", ErrWrongEpoch, cert.Header.Epoch, d.committee.Epoch)
	}

	if _, ok := d.committee.Authority(cert.Header.Author); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAuthor, cert.Header.Author.Short())
	}

	if err := cert.Verify(d.committee.BLSKeys(), d.committee.QuorumSize()); err != nil {
		return fmt.Errorf("verify certificate %s:\n%w", cert.Digest().Short(), err)
	}

	return nil
}

// Contains reports whether the digest is in the DAG.
func (d *Dag) Contains(digest types.CertificateDigest) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.nodes[digest]
	return ok
}

// Get returns the certificate with the given digest.
func (d *Dag) Get(digest types.CertificateDigest) (*types.Certificate, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n, ok := d.nodes[digest]
	if !ok {
		return nil, false
	}

	return n.cert, true
}

// Len returns the number of certificates in the DAG.
func (d *Dag) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.nodes)
}

// Children returns the digests of present certificates that name digest as a parent.
func (d *Dag) Children(digest types.CertificateDigest) []types.CertificateDigest {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []types.CertificateDigest
	for child := range d.children[digest] {
		if _, ok := d.nodes[child]; ok {
			result = append(result, child)
		}
	}

	return result
}

// Remove deletes the given certificates. Digests not in the DAG are skipped.
// If any certificate to remove has a child in the DAG that is not removed
// too, nothing is removed and ErrStillReferenced is returned.
func (d *Dag) Remove(ctx context.Context, digests []types.CertificateDigest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	removing := make(map[types.CertificateDigest]struct{}, len(digests))
	for _, digest := range digests {
		removing[digest] = struct{}{}
	}

	for _, digest := range digests {
		if _, ok := d.nodes[digest]; !ok {
			continue
		}

		for child := range d.children[digest] {
			if _, gone := removing[child]; gone {
				continue
			}
			if _, live := d.nodes[child]; live {
				return fmt.Errorf("%w: %s is a parent of %s", ErrStillReferenced, digest.Short(), child.Short())
			}
		}
	}

	for _, digest := range digests {
		n, ok := d.nodes[digest]
		if !ok {
			continue
		}

		delete(d.nodes, digest)
		delete(d.children, digest)

		for _, parent := range n.cert.Header.Parents {
			kids := d.children[parent]
			delete(kids, digest)
			if len(kids) == 0 {
				delete(d.children, parent)
			}
		}
	}

	return nil
}
