package bloom

import (
	"crypto/sha256"
	"math/big"
)

// digestHalves returns the unreduced 128-bit halves of SHA-256(item).
func digestHalves(item []byte) (*big.Int, *big.Int) {
	sum := sha256.Sum256(item)
	return new(big.Int).SetBytes(sum[:16]), new(big.Int).SetBytes(sum[16:])
}
