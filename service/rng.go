package service

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// randomInt returns a uniform value in [0, n) read from r
func randomInt(r io.Reader, n int64) (int64, error) {
	v, err := rand.Int(r, big.NewInt(n))
	if err != nil {
		return 0, fmt.Errorf("random generation failed: %w", err)
	}
	return v.Int64(), nil
}

// drawDistinct returns count distinct values from [low, high] in draw order
// using a partial Fisher-Yates shuffle
func drawDistinct(r io.Reader, low, high int32, count int) ([]int32, error) {
	size := int(high - low + 1)
	if count > size || count < 0 {
		return nil, fmt.Errorf("cannot draw %d distinct numbers from %d..%d", count, low, high)
	}

	pool := make([]int32, size)
	for i := range pool {
		pool[i] = low + int32(i)
	}

	for i := 0; i < count; i++ {
		n, err := randomInt(r, int64(size-i))
		if err != nil {
			return nil, err
		}
		j := i + int(n)
		pool[i], pool[j] = pool[j], pool[i]
	}

	return pool[:count], nil
}
