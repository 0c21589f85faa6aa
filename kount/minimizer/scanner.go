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

package minimizer

import (
	"errors"
	"sync"
)

// ErrInvalidK means k < 1 or k > 32.
var ErrInvalidK = errors.New("minimizer: invalid k-mer size (1 <= k <= 32)")

// ErrInvalidM means m < 1 or m > k.
var ErrInvalidM = errors.New("minimizer: invalid minimizer size (1 <= m <= k)")

// ErrShortSeq means the sequence is shorter than k,
// i.e., it contains no k-mer window at all.
var ErrShortSeq = errors.New("minimizer: sequence too short")

var poolScanner = &sync.Pool{New: func() interface{} {
	return &Scanner{}
}}

// mmer is one m-mer candidate in the sliding-window minimum queue.
type mmer struct {
	pos int    // start position of the m-mer
	val uint64 // 2-bit code, canonical if the scanner is canonical
}

// Scanner slides a k-base window over a sequence and, for every window of
// valid bases, emits the 2-bit code of the k-mer along with the minimizer
// of the window: the smallest m-mer code among the w = k-m+1 m-mers inside
// the window, ties broken by the earliest position.
//
// K-mer and m-mer codes are updated incrementally while sliding, and the
// window minimum is maintained with a monotonic queue, so the amortized cost
// per base is O(1). Bases beyond A/C/G/T (case-insensitive) terminate the
// current run of windows: nothing is emitted for windows spanning them, and
// scanning resumes after the offending byte.
type Scanner struct {
	s         []byte
	k, m      int
	canonical bool

	i        int // index of the next base to consume
	runLen   int // number of consecutive valid bases ending at i-1
	finished bool

	kcode, kcodeRC uint64
	mcode, mcodeRC uint64
	kmask, mmask   uint64
	kshift, mshift uint

	// monotonic queue as a ring buffer, capacity w+1.
	// values from head to tail are non-decreasing; the head is the
	// minimizer of the current window.
	dq         []mmer
	head, size int
}

// NewScanner returns a Scanner over s.
// The object is recycled into an internal pool once exhausted.
func NewScanner(s []byte, k int, m int, canonical bool) (*Scanner, error) {
	if k < 1 || k > 32 {
		return nil, ErrInvalidK
	}
	if m < 1 || m > k {
		return nil, ErrInvalidM
	}
	if len(s) < k {
		return nil, ErrShortSeq
	}

	scanner := poolScanner.Get().(*Scanner)
	scanner.s = s
	scanner.k = k
	scanner.m = m
	scanner.canonical = canonical

	scanner.i = 0
	scanner.runLen = 0
	scanner.finished = false

	// a recycled scanner may carry codes of a previous sequence,
	// the reverse-complement registers are not self-masking
	scanner.kcode = 0
	scanner.kcodeRC = 0
	scanner.mcode = 0
	scanner.mcodeRC = 0

	scanner.kmask = ^uint64(0) >> (64 - uint(k)<<1)
	scanner.mmask = ^uint64(0) >> (64 - uint(m)<<1)
	scanner.kshift = uint(k-1) << 1
	scanner.mshift = uint(m-1) << 1

	w := k - m + 2 // max queue length is w+1 = k-m+2
	if cap(scanner.dq) < w {
		scanner.dq = make([]mmer, w)
	} else {
		scanner.dq = scanner.dq[:cap(scanner.dq)]
	}
	scanner.head = 0
	scanner.size = 0

	return scanner, nil
}

// Next returns the code of the next k-mer window, the minimizer of the
// window, and the 0-based start position of the window.
// ok is false when the sequence is exhausted.
func (scanner *Scanner) Next() (code uint64, minimizer uint64, pos int, ok bool) {
	if scanner.finished {
		return 0, 0, 0, false
	}

	var c, v uint64
	var b byte
	var start int
	nq := len(scanner.dq)
	for scanner.i < len(scanner.s) {
		b = scanner.s[scanner.i]
		c = base2bit[b]
		scanner.i++

		if c == 4 { // break the run, no window spans an invalid base
			scanner.runLen = 0
			scanner.head = 0
			scanner.size = 0
			continue
		}

		scanner.runLen++
		scanner.kcode = (scanner.kcode<<2 | c) & scanner.kmask
		scanner.mcode = (scanner.mcode<<2 | c) & scanner.mmask
		if scanner.canonical {
			scanner.kcodeRC = scanner.kcodeRC>>2 | (c^3)<<scanner.kshift
			scanner.mcodeRC = scanner.mcodeRC>>2 | (c^3)<<scanner.mshift
		}

		if scanner.runLen < scanner.m {
			continue
		}

		// an m-mer ends at scanner.i-1
		v = scanner.mcode
		if scanner.canonical && scanner.mcodeRC < v {
			v = scanner.mcodeRC
		}
		start = scanner.i - scanner.m
		// pop strictly greater values from the tail,
		// so the earliest occurrence of the minimum stays at the head
		for scanner.size > 0 && scanner.dq[(scanner.head+scanner.size-1)%nq].val > v {
			scanner.size--
		}
		scanner.dq[(scanner.head+scanner.size)%nq] = mmer{pos: start, val: v}
		scanner.size++

		if scanner.runLen < scanner.k {
			continue
		}

		// a k-mer window ends at scanner.i-1
		pos = scanner.i - scanner.k
		for scanner.dq[scanner.head].pos < pos { // out of the window
			scanner.head = (scanner.head + 1) % nq
			scanner.size--
		}

		code = scanner.kcode
		if scanner.canonical && scanner.kcodeRC < code {
			code = scanner.kcodeRC
		}
		return code, scanner.dq[scanner.head].val, pos, true
	}

	scanner.finished = true
	poolScanner.Put(scanner)
	return 0, 0, 0, false
}

// only A/C/G/T (case-insensitive) are valid,
// any other byte, including IUPAC ambiguity codes, breaks the current run.
var base2bit = [256]uint64{
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 0, 4, 1, 4, 4, 4, 2, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 3, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 0, 4, 1, 4, 4, 4, 2, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 3, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
}
