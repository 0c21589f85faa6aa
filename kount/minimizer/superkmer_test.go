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
	"math/rand"
	"testing"
)

func TestSegmenterCoversAllWindows(t *testing.T) {
	r := rand.New(rand.NewSource(3))

	for _, canonical := range []bool{false, true} {
		k, m := 21, 11
		s := randSeq(r, 1000, true)

		windows := scanAll(t, s, k, m, canonical)

		seg, err := NewSegmenter(s, k, m, canonical)
		if err != nil {
			t.Fatalf("NewSegmenter: %s", err)
		}

		// flattening the super-k-mers must reproduce the window sequence,
		// each window belongs to exactly one super-k-mer
		i := 0
		for {
			min, codes, ok := seg.Next()
			if !ok {
				break
			}
			if len(codes) == 0 {
				t.Fatal("empty super-k-mer")
			}
			for _, code := range codes {
				if i >= len(windows) {
					t.Fatalf("more codes than windows (%d)", len(windows))
				}
				if code != windows[i].code {
					t.Fatalf("code #%d: %d, expected %d", i, code, windows[i].code)
				}
				if min != windows[i].min {
					t.Fatalf("code #%d: minimizer %d, expected %d", i, min, windows[i].min)
				}
				i++
			}
		}
		if i != len(windows) {
			t.Fatalf("%d codes from super-k-mers, expected %d windows", i, len(windows))
		}
	}
}

func TestSegmenterBoundaries(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	k, m := 13, 5
	s := randSeq(r, 800, false)

	windows := scanAll(t, s, k, m, false)

	seg, err := NewSegmenter(s, k, m, false)
	if err != nil {
		t.Fatalf("NewSegmenter: %s", err)
	}

	// a boundary only occurs where the minimizer value changes
	var prevMin uint64
	var first = true
	i := 0
	for {
		min, codes, ok := seg.Next()
		if !ok {
			break
		}
		if !first && min == prevMin && windows[i].pos == windows[i-1].pos+1 {
			t.Fatalf("super-k-mer at window #%d split without minimizer change", i)
		}
		prevMin = min
		first = false
		i += len(codes)
	}
}

func TestSegmenterShortSeq(t *testing.T) {
	if _, err := NewSegmenter([]byte("ACG"), 4, 3, false); err != ErrShortSeq {
		t.Errorf("expected ErrShortSeq, got %v", err)
	}
}

func TestSegmenterSingleWindow(t *testing.T) {
	seg, err := NewSegmenter([]byte("ACGT"), 4, 2, false)
	if err != nil {
		t.Fatalf("NewSegmenter: %s", err)
	}
	_, codes, ok := seg.Next()
	if !ok || len(codes) != 1 {
		t.Fatalf("expected a single super-k-mer with one code, got ok=%v, %d codes", ok, len(codes))
	}
	if _, _, ok = seg.Next(); ok {
		t.Error("expected exhausted segmenter")
	}
}
