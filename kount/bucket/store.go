// Copyright © 2024-2026 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package bucket

import (
	"encoding/binary"
	"errors"
	"runtime"
	"sync"

	"github.com/twotwotwo/sorts/sortutil"
	"github.com/zeebo/wyhash"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidBuckets means the number of buckets is not a power of two,
// or out of the range [1, 1<<20].
var ErrInvalidBuckets = errors.New("bucket: number of buckets should be a power of two in [1, 1048576]")

// MaxBuckets is the maximum number of buckets.
const MaxBuckets = 1 << 20

// seed of the routing hash, fixed so routing is a pure function of the minimizer.
const routeSeed uint64 = 1

// Store holds a fixed number of independently locked buckets of 2-bit
// encoded k-mers, indexed by a hash of the super-k-mer minimizer.
// Since equal k-mers always appear in super-k-mers with equal minimizers,
// equal values always land in the same bucket, which makes per-bucket
// deduplication equivalent to global deduplication.
type Store struct {
	n      int
	mask   uint64
	shards []shard

	initSize int
}

type shard struct {
	mu    sync.Mutex
	codes []uint64
}

// New creates a Store with n buckets. n should be a power of two,
// it's a tuning parameter balancing lock contention against per-bucket
// memory and sorting cost.
func New(n int) (*Store, error) {
	if n < 1 || n > MaxBuckets || n&(n-1) != 0 {
		return nil, ErrInvalidBuckets
	}
	return &Store{
		n:        n,
		mask:     uint64(n - 1),
		shards:   make([]shard, n),
		initSize: 1 << 10,
	}, nil
}

// Buckets returns the number of buckets.
func (s *Store) Buckets() int {
	return s.n
}

// Route returns the index of the bucket owning k-mers whose super-k-mer
// minimizer is the given value. Pure, so the same value is always routed
// to the same bucket regardless of thread, chunk, or insertion order.
func (s *Store) Route(minimizer uint64) int {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], minimizer)
	return int(wyhash.Hash(b[:], routeSeed) & s.mask)
}

// Insert appends a batch of k-mer codes to bucket i.
// Safe for concurrent callers, mutual exclusion is per bucket.
// Duplicates are kept, deduplication is deferred to Distinct().
func (s *Store) Insert(i int, codes []uint64) {
	sh := &s.shards[i]
	sh.mu.Lock()
	if sh.codes == nil {
		sh.codes = make([]uint64, 0, s.initSize)
	}
	sh.codes = append(sh.codes, codes...)
	sh.mu.Unlock()
}

// Size returns the total number of inserted codes, duplicates included.
func (s *Store) Size() int {
	var n int
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.codes)
		sh.mu.Unlock()
	}
	return n
}

// Distinct sorts every bucket and counts distinct values, in parallel with
// the given number of workers, and returns the sum over all buckets.
// It must only be called after all Insert calls have completed.
// Buckets are freed as they are consumed, so the store is one-shot.
func (s *Store) Distinct(threads int) uint64 {
	if threads < 1 {
		threads = runtime.NumCPU()
	}

	counts := make([]uint64, s.n)

	var eg errgroup.Group
	eg.SetLimit(threads)
	for i := range s.shards {
		i := i
		eg.Go(func() error {
			codes := s.shards[i].codes
			if len(codes) == 0 {
				return nil
			}
			sortutil.Uint64s(codes)

			var n uint64 = 1
			pre := codes[0]
			for _, code := range codes[1:] {
				if code != pre {
					n++
					pre = code
				}
			}
			counts[i] = n

			s.shards[i].codes = nil
			return nil
		})
	}
	eg.Wait()

	var sum uint64
	for _, n := range counts {
		sum += n
	}
	return sum
}
