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

import "sync"

var poolSegmenter = &sync.Pool{New: func() interface{} {
	return &Segmenter{
		codes: make([]uint64, 0, 128),
	}
}}

// Segmenter coalesces consecutive k-mer windows sharing one minimizer into
// super-k-mers. All k-mers of a super-k-mer are routed to the same bucket,
// so routing decisions and lock acquisitions are amortized over the whole
// super-k-mer rather than paid per k-mer.
type Segmenter struct {
	scanner *Scanner
	codes   []uint64

	// lookahead, the first window of the next super-k-mer
	nextCode, nextMin uint64
	nextPos           int
	buffered          bool
	drained           bool
}

// NewSegmenter returns a Segmenter over s.
// It returns ErrShortSeq for sequences shorter than k,
// which contain no k-mer at all.
// The object is recycled into an internal pool once exhausted.
func NewSegmenter(s []byte, k int, m int, canonical bool) (*Segmenter, error) {
	scanner, err := NewScanner(s, k, m, canonical)
	if err != nil {
		return nil, err
	}

	seg := poolSegmenter.Get().(*Segmenter)
	seg.scanner = scanner
	seg.codes = seg.codes[:0]
	seg.buffered = false
	seg.drained = false

	return seg, nil
}

// Next returns the next super-k-mer: its minimizer and the codes of its
// constituent k-mers, in position order. The codes slice is reused across
// calls, callers must not retain it.
// A super-k-mer ends where the minimizer value changes or where a run of
// valid bases is broken, so every k-mer window of the sequence belongs to
// exactly one super-k-mer.
func (seg *Segmenter) Next() (minimizer uint64, codes []uint64, ok bool) {
	if seg.drained {
		if seg.scanner != nil { // recycle once
			seg.scanner = nil
			poolSegmenter.Put(seg)
		}
		return 0, nil, false
	}

	var code, min uint64
	var pos int

	if !seg.buffered {
		code, min, pos, ok = seg.scanner.Next()
		if !ok {
			seg.drained = true
			seg.scanner = nil
			poolSegmenter.Put(seg)
			return 0, nil, false
		}
	} else {
		code, min, pos = seg.nextCode, seg.nextMin, seg.nextPos
		seg.buffered = false
	}

	seg.codes = seg.codes[:0]
	seg.codes = append(seg.codes, code)
	minimizer = min
	prevPos := pos

	for {
		code, min, pos, ok = seg.scanner.Next()
		if !ok {
			seg.drained = true
			break
		}
		if min != minimizer || pos != prevPos+1 {
			seg.nextCode, seg.nextMin, seg.nextPos = code, min, pos
			seg.buffered = true
			break
		}
		seg.codes = append(seg.codes, code)
		prevPos = pos
	}

	return minimizer, seg.codes, true
}
