// SPDX-License-Identifier: MIT

// Package bitint holds the power-of-two helpers used to size capture
// windows. All functions are allocation free and constant time.
package bitint

import "math/bits"

// IsPowerOfTwo reports whether n is a positive power of two. A power of two
// has a single bit set, so clearing its lowest set bit leaves zero.
//
//	8 -> 1000 & 0111 = 0000 (true)
//	6 -> 0110 & 0101 = 0100 (false)
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n, or 1 for n <= 0.
// Subtracting one first keeps exact powers of two unchanged.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// PrevPowerOfTwo returns the largest power of two <= n, or 0 for n <= 0.
func PrevPowerOfTwo(n int) int {
	if n <= 0 {
		return 0
	}
	return 1 << (bits.Len(uint(n)) - 1)
}

// Log2 returns log2(n) for a power of two n, and -1 otherwise.
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}
