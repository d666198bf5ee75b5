package pubsub

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	mrand "math/rand"

	"github.com/libp2p/go-libp2p-core/peer"
)

// NewSeededRand returns a *rand.Rand seeded with the given value, for
// deterministic tests (spec.md §4.3/§9: "expose the generator seed for
// deterministic tests"). Grounded on the teacher's own shufflePeers /
// shuffleStrings helpers in gossipsub.go, which use math/rand directly for
// the same mesh-sampling purpose.
func NewSeededRand(seed int64) *mrand.Rand {
	return mrand.New(mrand.NewSource(seed))
}

// NewCryptoSeededRand returns a *rand.Rand seeded from a cryptographically
// random source, for production use where determinism is not required.
func NewCryptoSeededRand() *mrand.Rand {
	max := big.NewInt(1)
	max.Lsh(max, 63)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		var buf [8]byte
		_, _ = rand.Read(buf[:])
		return mrand.New(mrand.NewSource(int64(binary.BigEndian.Uint64(buf[:]))))
	}
	return mrand.New(mrand.NewSource(n.Int64()))
}

// samplePeers uniformly samples up to n peers from candidates without
// replacement, using a shuffle-and-truncate strategy (spec.md §4.3/§9).
// candidates is not mutated.
func samplePeers(r *mrand.Rand, candidates []peer.ID, n int) []peer.ID {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}
	shuffled := make([]peer.ID, len(candidates))
	copy(shuffled, candidates)
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}

// shuffleStrings shuffles a string slice in place (used for gossip id order).
func shuffleStrings(r *mrand.Rand, lst []string) {
	r.Shuffle(len(lst), func(i, j int) {
		lst[i], lst[j] = lst[j], lst[i]
	})
}
