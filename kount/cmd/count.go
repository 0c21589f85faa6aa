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
	"os"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/util/pathutil"
	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "count distinct k-mers in FASTA/Q files",
	Long: `Count distinct k-mers in FASTA/Q files

The number of *distinct* k-mers (1 <= k <= 32) across all sequences of all
input files is computed exactly, without keeping every occurrence in memory:
k-mers are packed into 64-bit integers, grouped into super-k-mers via
minimizers, partitioned into buckets by a hash of the minimizer, and
deduplicated per bucket after all input is consumed.

Input:
  1. Input plain or gzip/xz/zstd-compressed FASTA/Q files can be given via
     positional arguments or the flag -X/--infile-list with the list of
     input files. Use "-" for stdin.
  2. Or a directory containing sequence files via the flag -I/--in-dir,
     with multiple-level sub-directories allowed. A regular expression
     for matching sequencing files is available via the flag -r/--file-regexp.

Attentions:
  1. Bases A/C/G/T are case-insensitive. Any other symbol, including IUPAC
     ambiguity codes, interrupts k-mers: no k-mer spans such a position.
  2. By default the forward strand is counted: a k-mer and its reverse
     complement are two distinct k-mers. Use -c/--canonical to count them
     as one.
  3. The same result is produced for any -j/--threads and -b/--buckets
     values, they only affect speed and memory.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

		var fhLog *os.File
		if opt.Log2File {
			fhLog = addLog(opt.LogFile, opt.Verbose)
		}
		timeStart := time.Now()
		defer func() {
			if opt.Verbose || opt.Log2File {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
				log.Info()
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		// ---------------------------------------------------------------
		// basic flags

		k := getFlagPositiveInt(cmd, "kmer-len")
		m := getFlagPositiveInt(cmd, "minimizer-len")
		buckets := getFlagPositiveInt(cmd, "buckets")
		canonical := getFlagBool(cmd, "canonical")

		outFile := getFlagString(cmd, "out-file")

		copt := &CountingOptions{
			NumCPUs:  opt.NumCPUs,
			Verbose:  opt.Verbose,
			Log2File: opt.Log2File,

			K:            k,
			MinimizerLen: m,
			Canonical:    canonical,

			Buckets: buckets,
		}
		checkError(CheckCountingOptions(copt))

		// ---------------------------------------------------------------
		// input files

		if opt.Verbose || opt.Log2File {
			log.Infof("kount v%s", VERSION)
			log.Info("  https://github.com/shenwei356/kount")
			log.Info()

			log.Info("checking input files ...")
		}

		inDir := getFlagString(cmd, "in-dir")
		readFromDir := inDir != ""
		if readFromDir {
			isDir, err := pathutil.IsDir(inDir)
			if err != nil {
				checkError(errors.Wrapf(err, "checking -I/--in-dir"))
			}
			if !isDir {
				checkError(fmt.Errorf("value of -I/--in-dir should be a directory: %s", inDir))
			}
		}

		reFileStr := getFlagString(cmd, "file-regexp")
		var reFile *regexp.Regexp
		if reFileStr != "" {
			if !reIgnoreCase.MatchString(reFileStr) {
				reFileStr = reIgnoreCaseStr + reFileStr
			}
			var err error
			reFile, err = regexp.Compile(reFileStr)
			checkError(errors.Wrapf(err, "failed to parse regular expression for matching file: %s", reFileStr))
		}

		var files []string
		var err error
		if readFromDir {
			files, err = getFileListFromDir(inDir, reFile, opt.NumCPUs)
			if err != nil {
				checkError(errors.Wrapf(err, "walking dir: %s", inDir))
			}
			if len(files) == 0 {
				log.Warningf("  no files matching regular expression: %s", reFileStr)
			}
		} else {
			files = getFileListFromArgsAndFile(cmd, args, true, "infile-list", true)
			if opt.Verbose || opt.Log2File {
				if len(files) == 1 && isStdin(files[0]) {
					log.Info("  no files given, reading from stdin")
				}
			}
		}
		if len(files) < 1 {
			checkError(fmt.Errorf("FASTA/Q files needed"))
		} else if opt.Verbose || opt.Log2File {
			log.Infof("  %d input file(s) given", len(files))
		}

		// ---------------------------------------------------------------
		// log

		if opt.Verbose || opt.Log2File {
			log.Info()
			log.Infof("-------------------- [main parameters] --------------------")
			log.Infof("k-mer size: %d", k)
			log.Infof("minimizer size: %d", m)
			log.Infof("canonical k-mers: %v", canonical)
			log.Infof("buckets: %d", buckets)
			log.Infof("threads: %d", opt.NumCPUs)
			log.Infof("-------------------- [main parameters] --------------------")
			log.Info()
			log.Infof("counting distinct %d-mers ...", k)
		}

		// ---------------------------------------------------------------

		count, err := CountFiles(files, copt)
		checkError(err)

		if opt.Verbose || opt.Log2File {
			log.Info()
			log.Infof("%d distinct %d-mers", count, k)
		}

		outfh, err := xopen.Wopen(outFile)
		checkError(err)
		fmt.Fprintf(outfh, "%d\n", count)
		checkError(outfh.Close())
	},
}

func init() {
	RootCmd.AddCommand(countCmd)

	countCmd.Flags().IntP("kmer-len", "k", 31, `k-mer length, in range [1, 32]`)
	countCmd.Flags().IntP("minimizer-len", "m", 21, `minimizer length, in range [1, k]`)
	countCmd.Flags().IntP("buckets", "b", 1024, `number of buckets for partitioning k-mers, a power of two`)
	countCmd.Flags().BoolP("canonical", "c", false, `count a k-mer and its reverse complement as one`)

	countCmd.Flags().StringP("out-file", "o", "-", `output file, supports .gz/.xz/.zst, "-" for stdout`)

	countCmd.Flags().StringP("infile-list", "X", "", `file of input file list (one file per line), if given, files from arguments are ignored`)
	countCmd.Flags().StringP("in-dir", "I", "", `directory containing FASTA/Q files. directory symlinks are followed`)
	countCmd.Flags().StringP("file-regexp", "r", `\.(f[aq](st[aq])?|fna)(\.gz|\.xz|\.zst)?$`, `regular expression for matching sequence files in -I/--in-dir, case ignored`)
}
