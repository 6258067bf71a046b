// Package cipher implements Merkle-Hellman encryption and decryption.
//
// Encryption maps every plaintext byte to the sum of the public-key elements
// selected by its bits, most significant bit first. Decryption multiplies each
// sum by r^-1 mod q, which turns it into a subset sum over the superincreasing
// private sequence, and recovers the bits greedily.
package cipher

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// parallelThreshold is the ciphertext length above which decryption is split
// across GOMAXPROCS workers.
const parallelThreshold = 2048

// forEachRange calls fn over consecutive sub-ranges of [0, n). Small inputs
// run on the calling goroutine; larger inputs are split across workers and the
// first error returned by any worker is reported.
func forEachRange(n int, fn func(lo, hi int) error) error {
	numWorkers := runtime.GOMAXPROCS(0)
	if n < parallelThreshold || numWorkers <= 1 {
		return fn(0, n)
	}

	var g errgroup.Group
	perWorker := (n + numWorkers - 1) / numWorkers
	for lo := 0; lo < n; lo += perWorker {
		hi := lo + perWorker
		if hi > n {
			hi = n
		}
		lo := lo
		g.Go(func() error {
			return fn(lo, hi)
		})
	}
	return g.Wait()
}
