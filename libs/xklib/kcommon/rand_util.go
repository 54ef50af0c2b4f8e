package kcommon

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"

	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
)

type safeRandom struct {
	mu         sync.Mutex
	seededRand *rand.Rand
}

var safeRand safeRandom

// GetRandom runs op with the process-wide rand under lock, seeded once from crypto/rand.
func GetRandom(ctx context.Context, op func(*rand.Rand)) {
	safeRand.mu.Lock()
	defer safeRand.mu.Unlock()
	if safeRand.seededRand == nil {
		seed := int64(1)
		buf := make([]byte, 8)
		if _, err := crypto_rand.Read(buf); err != nil {
			klogging.Warning(ctx).WithError(err).Log("CryptoRandSeedFailed", "")
		} else {
			seed = int64(binary.BigEndian.Uint64(buf))
		}
		safeRand.seededRand = rand.New(rand.NewSource(seed))
	}
	op(safeRand.seededRand)
}

// RandomInt returns a pseudo-random number in [0,max)
func RandomInt(ctx context.Context, max int) (ret int) {
	if max <= 0 {
		return 0
	}
	GetRandom(ctx, func(r *rand.Rand) {
		ret = r.Intn(max)
	})
	return
}

// RandomizeValueByRatio: val=100 ratio=0.1 returns a value in [90,110)
func RandomizeValueByRatio(ctx context.Context, value int, ratio float32) int {
	min := int(float32(value) * (1. - ratio))
	max := int(float32(value) * (1. + ratio))
	return RandomInt(ctx, max-min) + min
}
