package game

import (
	"crypto/rand"
	"math/big"
)

// Roller produces die values. The server is the only source of rolls;
// clients never supply dice.
type Roller interface {
	// Roll returns a value in [1, 6].
	Roll() int
}

// CryptoRoller rolls with crypto/rand.
type CryptoRoller struct {
}

func NewCryptoRoller() *CryptoRoller {
	return &CryptoRoller{}
}

func (r *CryptoRoller) Roll() int {
	n, err := rand.Int(rand.Reader, big.NewInt(6))
	if err != nil {
		// crypto/rand only fails if the platform source is broken
		panic(err)
	}
	return int(n.Int64()) + 1
}

// FixedRoller replays a scripted sequence of die values and is used in
// tests. It wraps around when exhausted.
type FixedRoller struct {
	values []int
	next   int
}

func NewFixedRoller(values ...int) *FixedRoller {
	return &FixedRoller{values: values}
}

func (r *FixedRoller) Roll() int {
	if len(r.values) == 0 {
		return 1
	}
	v := r.values[r.next%len(r.values)]
	r.next++
	return v
}
