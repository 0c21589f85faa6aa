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

package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/kount/kount/bucket"
	"github.com/shenwei356/kount/kount/minimizer"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// CountingOptions contains all parameters of the counting engine.
type CountingOptions struct {
	// general
	NumCPUs  int
	Verbose  bool // show log
	Log2File bool

	K            int  // k-mer size
	MinimizerLen int  // minimizer size, <= k
	Canonical    bool // count a k-mer and its reverse complement as one

	Buckets int // number of buckets for partitioning k-mers, a power of two
}

// CheckCountingOptions checks the options. It has to be called before any
// sequence is processed, invalid parameters are configuration errors,
// not per-sequence ones.
func CheckCountingOptions(opt *CountingOptions) error {
	if opt.K < 1 || opt.K > 32 {
		return fmt.Errorf("invalid k value: %d, valid range: [1, 32]", opt.K)
	}
	if opt.MinimizerLen < 1 || opt.MinimizerLen > opt.K {
		return fmt.Errorf("invalid minimizer length: %d, valid range: [1, k] with k=%d", opt.MinimizerLen, opt.K)
	}
	if opt.Buckets < 1 || opt.Buckets > bucket.MaxBuckets || opt.Buckets&(opt.Buckets-1) != 0 {
		return fmt.Errorf("invalid number of buckets: %d, should be a power of two in [1, %d]", opt.Buckets, bucket.MaxBuckets)
	}
	if opt.NumCPUs < 1 {
		opt.NumCPUs = runtime.NumCPU()
	}
	return nil
}

var poolSeq = &sync.Pool{New: func() interface{} {
	s := make([]byte, 0, 1<<20)
	return &s
}}

// CountFiles counts distinct k-mers across all sequences of all input
// FASTA/Q files (plain or compressed, use "-" for stdin).
//
// Records are read sequentially, each record's sequence is handed to one
// worker goroutine which scans super-k-mers and appends the encoded k-mers
// into the bucket store. The only shared mutable state between workers is
// the store, locked per bucket. After all records are processed (wg.Wait,
// not a best-effort flag), buckets are deduplicated independently and the
// per-bucket counts summed.
//
// A reading error aborts the whole run, a partial count is never returned.
func CountFiles(files []string, opt *CountingOptions) (uint64, error) {
	if err := CheckCountingOptions(opt); err != nil {
		return 0, err
	}

	store, err := bucket.New(opt.Buckets)
	if err != nil {
		return 0, err
	}

	// process bar
	var pbs *mpb.Progress
	var bar *mpb.Bar
	var chDuration chan time.Duration
	var doneDuration chan int
	if opt.Verbose {
		pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
		bar = pbs.AddBar(int64(len(files)),
			mpb.PrependDecorators(
				decor.Name("processed files: ", decor.WC{W: len("processed files: "), C: decor.DindentRight}),
				decor.Name("", decor.WCSyncSpaceR),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
				decor.EwmaETA(decor.ET_STYLE_GO, 10),
				decor.OnComplete(decor.Name(""), ". done"),
			),
		)

		chDuration = make(chan time.Duration, opt.NumCPUs)
		doneDuration = make(chan int)
		go func() {
			for t := range chDuration {
				bar.EwmaIncrBy(1, t)
			}
			doneDuration <- 1
		}()
	}

	var wg sync.WaitGroup
	tokens := make(chan int, opt.NumCPUs)

	var failed error
	var record *fastx.Record
	for _, file := range files {
		startTime := time.Now()

		fastxReader, err := fastx.NewReader(nil, file, "")
		if err != nil {
			failed = errors.Wrap(err, file)
			break
		}

		for {
			record, err = fastxReader.Read()
			if err != nil {
				if err == io.EOF {
					break
				}
				failed = errors.Wrap(err, file)
				break
			}

			if len(record.Seq.Seq) < opt.K {
				continue
			}

			// the record is reused by the reader, copy the sequence
			s := poolSeq.Get().(*[]byte)
			*s = append((*s)[:0], record.Seq.Seq...)

			tokens <- 1
			wg.Add(1)
			go func(s *[]byte) {
				defer func() {
					wg.Done()
					<-tokens
				}()

				countSeq(*s, opt, store)
				poolSeq.Put(s)
			}(s)
		}
		fastxReader.Close()

		if failed != nil {
			break
		}

		if opt.Verbose {
			chDuration <- time.Since(startTime)
		}
	}

	// the barrier: aggregation must not start before
	// every insert has completed
	wg.Wait()

	if opt.Verbose {
		close(chDuration)
		<-doneDuration
		if failed != nil {
			// the bar never reaches its total on a failed run
			bar.Abort(true)
		}
		pbs.Wait()
	}

	if failed != nil {
		return 0, failed
	}

	return store.Distinct(opt.NumCPUs), nil
}

// CountSeqs counts distinct k-mers across in-memory sequences.
// It is the file-less counterpart of CountFiles.
func CountSeqs(seqs [][]byte, opt *CountingOptions) (uint64, error) {
	if err := CheckCountingOptions(opt); err != nil {
		return 0, err
	}

	store, err := bucket.New(opt.Buckets)
	if err != nil {
		return 0, err
	}

	var wg sync.WaitGroup
	tokens := make(chan int, opt.NumCPUs)

	for _, s := range seqs {
		tokens <- 1
		wg.Add(1)
		go func(s []byte) {
			defer func() {
				wg.Done()
				<-tokens
			}()

			countSeq(s, opt, store)
		}(s)
	}
	wg.Wait()

	return store.Distinct(opt.NumCPUs), nil
}

// countSeq runs the Segmenter over one sequence and routes every
// super-k-mer into the bucket store, one lock acquisition per super-k-mer.
func countSeq(s []byte, opt *CountingOptions, store *bucket.Store) {
	seg, err := minimizer.NewSegmenter(s, opt.K, opt.MinimizerLen, opt.Canonical)
	if err != nil { // only ErrShortSeq possible here, k and m are checked upfront
		return
	}

	var min uint64
	var codes []uint64
	var ok bool
	for {
		min, codes, ok = seg.Next()
		if !ok {
			break
		}
		store.Insert(store.Route(min), codes)
	}
}
