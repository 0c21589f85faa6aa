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
	"bytes"
	"math/rand"
	"testing"

	"github.com/shenwei356/kmers"
)

// window describes one k-mer window for the naive oracle.
type window struct {
	pos  int
	code uint64
	min  uint64
}

func naiveEncode(s []byte) (uint64, bool) {
	var code uint64
	for _, b := range s {
		c := base2bit[b]
		if c == 4 {
			return 0, false
		}
		code = code<<2 | c
	}
	return code, true
}

// naiveWindows recomputes every window from scratch, no incremental tricks.
func naiveWindows(s []byte, k, m int, canonical bool) []window {
	windows := make([]window, 0, len(s))
	for i := 0; i+k <= len(s); i++ {
		code, ok := naiveEncode(s[i : i+k])
		if !ok {
			continue
		}
		if canonical {
			if rc := kmers.MustRevComp(code, k); rc < code {
				code = rc
			}
		}

		var min uint64 = ^uint64(0)
		for j := i; j+m <= i+k; j++ {
			mcode, _ := naiveEncode(s[j : j+m])
			if canonical {
				if rc := kmers.MustRevComp(mcode, m); rc < mcode {
					mcode = rc
				}
			}
			if mcode < min {
				min = mcode
			}
		}
		windows = append(windows, window{pos: i, code: code, min: min})
	}
	return windows
}

func scanAll(t *testing.T, s []byte, k, m int, canonical bool) []window {
	scanner, err := NewScanner(s, k, m, canonical)
	if err == ErrShortSeq {
		return nil
	}
	if err != nil {
		t.Fatalf("NewScanner: %s", err)
	}
	windows := make([]window, 0, len(s))
	for {
		code, min, pos, ok := scanner.Next()
		if !ok {
			break
		}
		windows = append(windows, window{pos: pos, code: code, min: min})
	}
	return windows
}

func randSeq(r *rand.Rand, n int, withInvalid bool) []byte {
	alphabet := []byte("ACGTacgt")
	s := make([]byte, n)
	for i := range s {
		if withInvalid && r.Intn(20) == 0 {
			s[i] = 'N'
			continue
		}
		s[i] = alphabet[r.Intn(len(alphabet))]
	}
	return s
}

func TestScannerAgainstNaive(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	tests := []struct{ k, m int }{
		{1, 1},
		{4, 3},
		{5, 5},
		{13, 7},
		{21, 11},
		{31, 21},
		{32, 5},
		{32, 32},
	}

	for _, c := range tests {
		for _, canonical := range []bool{false, true} {
			for _, withInvalid := range []bool{false, true} {
				s := randSeq(r, 500, withInvalid)
				got := scanAll(t, s, c.k, c.m, canonical)
				want := naiveWindows(s, c.k, c.m, canonical)

				if len(got) != len(want) {
					t.Fatalf("k=%d, m=%d, canonical=%v: %d windows, expected %d",
						c.k, c.m, canonical, len(got), len(want))
				}
				for i, w := range want {
					if got[i] != w {
						t.Fatalf("k=%d, m=%d, canonical=%v, window #%d: got %+v, expected %+v",
							c.k, c.m, canonical, i, got[i], w)
					}
				}
			}
		}
	}
}

func TestScannerRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	k, m := 21, 11
	s := randSeq(r, 200, false)

	for _, w := range scanAll(t, s, k, m, false) {
		decoded := kmers.MustDecode(w.code, k)
		expected := bytes.ToUpper(s[w.pos : w.pos+k])
		if !bytes.Equal(decoded, expected) {
			t.Errorf("round trip failed at %d: %s != %s", w.pos, decoded, expected)
		}
	}
}

func TestScannerInvalidBases(t *testing.T) {
	// N breaks the run: only the windows at 0 and 5 are valid,
	// and they encode the same k-mer
	windows := scanAll(t, []byte("ACGTNACGT"), 4, 3, false)
	if len(windows) != 2 {
		t.Fatalf("%d windows, expected 2", len(windows))
	}
	if windows[0].pos != 0 || windows[1].pos != 5 {
		t.Fatalf("window positions %d and %d, expected 0 and 5", windows[0].pos, windows[1].pos)
	}
	if windows[0].code != windows[1].code {
		t.Errorf("windows encode different codes: %d != %d", windows[0].code, windows[1].code)
	}
	if windows[0].min != windows[1].min {
		t.Errorf("windows have different minimizers: %d != %d", windows[0].min, windows[1].min)
	}
}

func TestScannerBoundaries(t *testing.T) {
	// shorter than k
	if _, err := NewScanner([]byte("ACG"), 4, 3, false); err != ErrShortSeq {
		t.Errorf("expected ErrShortSeq, got %v", err)
	}

	// exactly k bases, one window
	windows := scanAll(t, []byte("ACGT"), 4, 3, false)
	if len(windows) != 1 {
		t.Fatalf("%d windows, expected 1", len(windows))
	}
	code, _ := kmers.Encode([]byte("ACGT"))
	if windows[0].code != code {
		t.Errorf("code %d, expected %d", windows[0].code, code)
	}
}

func TestScannerConfig(t *testing.T) {
	s := []byte("ACGTACGTACGTACGTACGTACGTACGTACGTACGT")
	if _, err := NewScanner(s, 0, 1, false); err != ErrInvalidK {
		t.Errorf("k=0: expected ErrInvalidK, got %v", err)
	}
	if _, err := NewScanner(s, 33, 1, false); err != ErrInvalidK {
		t.Errorf("k=33: expected ErrInvalidK, got %v", err)
	}
	if _, err := NewScanner(s, 4, 0, false); err != ErrInvalidM {
		t.Errorf("m=0: expected ErrInvalidM, got %v", err)
	}
	if _, err := NewScanner(s, 4, 5, false); err != ErrInvalidM {
		t.Errorf("m>k: expected ErrInvalidM, got %v", err)
	}
}

// a scanner recycled from the pool must not leak code registers of a
// previous run into the next one: the reverse-complement registers are
// only fully refreshed by masking after k bases, so stale high bits from
// a run with larger k would corrupt the first windows.
func TestScannerRecycledState(t *testing.T) {
	r := rand.New(rand.NewSource(23))

	// fill the pool with exhausted scanners holding wide, T-heavy codes
	for i := 0; i < 8; i++ {
		s := bytes.Repeat([]byte("T"), 64)
		scanner, err := NewScanner(s, 32, 16, true)
		if err != nil {
			t.Fatalf("NewScanner: %s", err)
		}
		for {
			if _, _, _, ok := scanner.Next(); !ok {
				break
			}
		}
	}

	// TTTT canonicalizes to AAAA, code 0
	windows := scanAll(t, []byte("TTTT"), 4, 2, true)
	if len(windows) != 1 {
		t.Fatalf("%d windows, expected 1", len(windows))
	}
	if windows[0].code != 0 {
		t.Errorf("canonical code of TTTT = %d, expected 0", windows[0].code)
	}

	// and the full oracle must still hold right after recycling
	for i := 0; i < 4; i++ {
		s := randSeq(r, 300, false)
		got := scanAll(t, s, 5, 3, true)
		want := naiveWindows(s, 5, 3, true)
		if len(got) != len(want) {
			t.Fatalf("%d windows, expected %d", len(got), len(want))
		}
		for j, w := range want {
			if got[j] != w {
				t.Fatalf("window #%d: got %+v, expected %+v", j, got[j], w)
			}
		}
	}
}

func revCompSeq(s []byte) []byte {
	comp := map[byte]byte{'A': 'T', 'C': 'G', 'G': 'C', 'T': 'A', 'a': 't', 'c': 'g', 'g': 'c', 't': 'a'}
	rc := make([]byte, len(s))
	for i, b := range s {
		rc[len(s)-1-i] = comp[b]
	}
	return rc
}

func TestScannerCanonicalStrandSymmetry(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	k, m := 15, 9
	s := randSeq(r, 300, false)
	rc := revCompSeq(s)

	count := func(ws []window) (codes, mins map[uint64]int) {
		codes = make(map[uint64]int)
		mins = make(map[uint64]int)
		for _, w := range ws {
			codes[w.code]++
			mins[w.min]++
		}
		return codes, mins
	}

	codes1, mins1 := count(scanAll(t, s, k, m, true))
	codes2, mins2 := count(scanAll(t, rc, k, m, true))

	if len(codes1) != len(codes2) {
		t.Fatalf("canonical codes differ between strands: %d != %d", len(codes1), len(codes2))
	}
	for code, n := range codes1 {
		if codes2[code] != n {
			t.Errorf("canonical code %d: %d on forward, %d on reverse", code, n, codes2[code])
		}
	}
	for min, n := range mins1 {
		if mins2[min] != n {
			t.Errorf("canonical minimizer %d: %d on forward, %d on reverse", min, n, mins2[min])
		}
	}
}
