package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"DagPool/internal/crypto"
	"DagPool/internal/types"
)

// randomKeyHex returns a fresh ed25519 public key in hex.
func randomKeyHex(t *testing.T) string {
	t.Helper()

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	return hex.EncodeToString(pub)
}

// committeeJSON describes n authorities with two workers each.
func committeeJSON(t *testing.T, n int) string {
	t.Helper()

	var entries []string
	for i := 0; i < n; i++ {
		kp, err := crypto.GenerateKeyPair()
		require.NoError(t, err)

		entries = append(entries, fmt.Sprintf(`{
			"name": %q, "bls_key": %q, "address": "127.0.0.1:%d",
			"workers": [
				{"id": 0, "name": %q, "address": "127.0.0.1:%d"},
				{"id": 1, "name": %q, "address": "127.0.0.1:%d"}
			]}`,
			randomKeyHex(t), hex.EncodeToString(kp.PublicKey()), 9000+i,
			randomKeyHex(t), 9100+i, randomKeyHex(t), 9200+i))
	}

	return `{"epoch": 3, "authorities": [` + strings.Join(entries, ",") + `]}`
}

func TestLoadCommittee(t *testing.T) {
	path := filepath.Join(t.TempDir(), "committee.json")
	require.NoError(t, os.WriteFile(path, []byte(committeeJSON(t, 4)), 0600))

	c, err := LoadCommittee(path)
	require.NoError(t, err)

	require.Equal(t, uint64(3), c.Epoch)
	require.Equal(t, 4, c.Size())
	require.Equal(t, 3, c.QuorumSize())
	require.Len(t, c.BLSKeys(), 4)

	for i, key := range c.BLSKeys() {
		require.Len(t, key, crypto.PublicKeySize, "authority %d", i)
	}
}

func TestParseCommitteeRejectsBadInput(t *testing.T) {
	_, err := ParseCommittee([]byte(`{"epoch": 1, "authorities": []}`))
	require.Error(t, err)

	_, err = ParseCommittee([]byte(`{"authorities": [{"name": "zz", "bls_key": ""}]}`))
	require.Error(t, err)

	_, err = ParseCommittee([]byte(`not json`))
	require.Error(t, err)
}

func TestWorkerCacheLookup(t *testing.T) {
	c, err := ParseCommittee([]byte(committeeJSON(t, 2)))
	require.NoError(t, err)

	cache := c.WorkerCache()
	a := c.authorities[0]

	info, ok := cache.Worker(a.Name, 1)
	require.True(t, ok)
	require.Equal(t, a.Workers[1], info)

	_, ok = cache.Worker(a.Name, 7)
	require.False(t, ok)

	_, ok = cache.Worker(types.PublicKey{0xEE}, 0)
	require.False(t, ok)
}

func TestFindWorker(t *testing.T) {
	c, err := ParseCommittee([]byte(committeeJSON(t, 3)))
	require.NoError(t, err)

	a := c.Authorities()[2]

	authority, id, ok := c.FindWorker(a.Workers[1].Name)
	require.True(t, ok)
	require.Equal(t, a.Name, authority)
	require.Equal(t, types.WorkerID(1), id)

	_, _, ok = c.FindWorker(a.Name)
	require.False(t, ok)
}

func TestWorkerCachePeers(t *testing.T) {
	c, err := ParseCommittee([]byte(committeeJSON(t, 3)))
	require.NoError(t, err)

	self := c.Authorities()[0]
	cache := c.WorkerCache()

	peers := cache.Peers(self.Name, 1)
	require.Len(t, peers, 2)
	for _, p := range peers {
		require.NotEqual(t, self.Workers[1].Name, p.Name)
		require.True(t, cache.IsPeer(self.Name, 1, p.Name))
		require.False(t, cache.IsPeer(self.Name, 0, p.Name))
	}

	require.False(t, cache.IsPeer(self.Name, 1, self.Workers[1].Name))
	require.False(t, cache.IsPeer(self.Name, 1, c.Authorities()[1].Name))
	require.Empty(t, cache.Peers(self.Name, 7))
}

func TestSharedWorkerCacheSwap(t *testing.T) {
	name := types.PublicKey{1}
	first := NewWorkerCache(1, map[types.PublicKey]map[types.WorkerID]WorkerInfo{
		name: {0: {QUICAddr: "a:1"}},
	})
	second := NewWorkerCache(2, map[types.PublicKey]map[types.WorkerID]WorkerInfo{
		name: {0: {QUICAddr: "b:1"}},
	})

	shared := NewSharedWorkerCache(first)
	require.Same(t, first, shared.Load())

	prev := shared.Swap(second)
	require.Same(t, first, prev)

	info, ok := shared.Load().Worker(name, 0)
	require.True(t, ok)
	require.Equal(t, "b:1", info.QUICAddr)
}

func TestReconfigureNotification(t *testing.T) {
	require.True(t, ReconfigureNotification{Kind: Shutdown}.IsShutdown())
	require.Zero(t, ReconfigureNotification{Kind: Shutdown}.Epoch())

	c := NewCommittee(5, nil)
	n := ReconfigureNotification{Kind: NewEpoch, Committee: c}
	require.False(t, n.IsShutdown())
	require.Equal(t, uint64(5), n.Epoch())
	require.Equal(t, "new_epoch", n.Kind.String())
}
