package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"DagPool/internal/crypto"
	"DagPool/internal/types"
)

// quorumThreshold is the minimum percentage of authorities required (67%).
const quorumThreshold = 67

// Authority is one committee member and its primary endpoint.
type Authority struct {
	Name     types.PublicKey // Name is the primary's ed25519 identity
	BLSKey   []byte          // BLSKey is the compressed BLS public key used in certificates
	QUICAddr string          // QUICAddr is the primary's QUIC address
	Workers  map[types.WorkerID]WorkerInfo
}

// Committee is the set of authorities for one epoch, sorted by name.
type Committee struct {
	Epoch       uint64
	authorities []*Authority
	index       map[types.PublicKey]int
}

// NewCommittee sorts authorities by name and indexes them.
func NewCommittee(epoch uint64, authorities []*Authority) *Committee {
	sorted := make([]*Authority, len(authorities))
	copy(sorted, authorities)

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name.String() < sorted[j].Name.String()
	})

	c := &Committee{
		Epoch:       epoch,
		authorities: sorted,
		index:       make(map[types.PublicKey]int, len(sorted)),
	}

	for i, a := range sorted {
		c.index[a.Name] = i
	}

	return c
}

// Size returns the number of authorities.
func (c *Committee) Size() int {
	return len(c.authorities)
}

// QuorumSize returns the minimum number of signers for a certificate.
func (c *Committee) QuorumSize() int {
	return (len(c.authorities)*quorumThreshold + 99) / 100
}

// Authority returns the member with the given name.
func (c *Committee) Authority(name types.PublicKey) (*Authority, bool) {
	idx, ok := c.index[name]
	if !ok {
		return nil, false
	}

	return c.authorities[idx], true
}

// Index returns the committee position of name, or -1.
func (c *Committee) Index(name types.PublicKey) int {
	if idx, ok := c.index[name]; ok {
		return idx
	}

	return -1
}

// BLSKeys returns every member's BLS key in committee order.
func (c *Committee) BLSKeys() [][]byte {
	keys := make([][]byte, len(c.authorities))
	for i, a := range c.authorities {
		keys[i] = a.BLSKey
	}

	return keys
}

// Authorities returns the members in committee order.
func (c *Committee) Authorities() []*Authority {
	return c.authorities
}

// FindWorker returns the authority and id of the worker with the given identity.
func (c *Committee) FindWorker(name types.PublicKey) (types.PublicKey, types.WorkerID, bool) {
	for _, a := range c.authorities {
		for id, w := range a.Workers {
			if w.Name == name {
				return a.Name, id, true
			}
		}
	}

	return types.PublicKey{}, 0, false
}

// WorkerCache builds the worker lookup table for this committee.
func (c *Committee) WorkerCache() *WorkerCache {
	workers := make(map[types.PublicKey]map[types.WorkerID]WorkerInfo, len(c.authorities))
	for _, a := range c.authorities {
		workers[a.Name] = a.Workers
	}

	return NewWorkerCache(c.Epoch, workers)
}

// committeeFile is the JSON layout of a committee file.
type committeeFile struct {
	Epoch       uint64          `json:"epoch"`
	Authorities []authorityFile `json:"authorities"`
}

type authorityFile struct {
	Name    string       `json:"name"`
	BLSKey  string       `json:"bls_key"`
	Address string       `json:"address"`
	Workers []workerFile `json:"workers"`
}

type workerFile struct {
	ID      uint32 `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// LoadCommittee reads a committee from a JSON file.
func LoadCommittee(path string) (*Committee, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read committee file:\n%w", err)
	}

	return ParseCommittee(data)
}

// ParseCommittee decodes a JSON committee description.
func ParseCommittee(data []byte) (*Committee, error) {
	var file committeeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode committee:\n%w", err)
	}

	if len(file.Authorities) == 0 {
		return nil, fmt.Errorf("committee has no authorities")
	}

	authorities := make([]*Authority, 0, len(file.Authorities))
	seen := make(map[types.PublicKey]bool, len(file.Authorities))

	for _, af := range file.Authorities {
		a, err := parseAuthority(af)
		if err != nil {
			return nil, err
		}

		if seen[a.Name] {
			return nil, fmt.Errorf("duplicate authority %s", a.Name.Short())
		}
		seen[a.Name] = true

		authorities = append(authorities, a)
	}

	return NewCommittee(file.Epoch, authorities), nil
}

// parseAuthority decodes one authority entry and its workers.
func parseAuthority(af authorityFile) (*Authority, error) {
	name, err := types.ParsePublicKey(af.Name)
	if err != nil {
		return nil, fmt.Errorf("authority name:\n%w", err)
	}

	blsKey, err := hex.DecodeString(af.BLSKey)
	if err != nil || len(blsKey) != crypto.PublicKeySize {
		return nil, fmt.Errorf("authority %s: invalid BLS key", name.Short())
	}

	a := &Authority{
		Name:     name,
		BLSKey:   blsKey,
		QUICAddr: af.Address,
		Workers:  make(map[types.WorkerID]WorkerInfo, len(af.Workers)),
	}

	for _, wf := range af.Workers {
		wName, err := types.ParsePublicKey(wf.Name)
		if err != nil {
			return nil, fmt.Errorf("authority %s worker %d:\n%w", name.Short(), wf.ID, err)
		}

		id := types.WorkerID(wf.ID)
		if _, dup := a.Workers[id]; dup {
			return nil, fmt.Errorf("authority %s: duplicate worker %d", name.Short(), wf.ID)
		}

		a.Workers[id] = WorkerInfo{Name: wName, QUICAddr: wf.Address}
	}

	return a, nil
}
