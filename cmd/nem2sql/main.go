// Command nem2sql converts NEM12 interval CSV data into SQL INSERT
// statements, one statement per meter reading, streaming from input to
// output in batches.
//
// Rows are processed in arrival order. A malformed CSV read stops the run
// with a nonzero exit, but every statement generated before the failure has
// already been written.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/JonMunkholm/nem2sql/internal/nem12"
)

var (
	inPath    = flag.String("in", "", "Input NEM12 CSV file (default: stdin)")
	outPath   = flag.String("out", "", "Output SQL file (default: stdout)")
	batchRows = flag.Int("batch", nem12.DefaultBatchSize, "CSV rows processed per batch")
	quiet     = flag.Bool("q", false, "Suppress the summary written to stderr")
)

func main() {
	flag.Parse()

	in := io.Reader(os.Stdin)
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			fatalf("open input: %v", err)
		}
		defer f.Close()
		in = f
	}

	out := io.Writer(os.Stdout)
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fatalf("create output: %v", err)
		}
		defer f.Close()
		out = f
	}

	start := time.Now()
	w := bufio.NewWriter(out)

	rowsRead, emitted, err := convert(in, w, *batchRows)

	// Partial output is kept on failure, so flush before reporting.
	if ferr := w.Flush(); ferr != nil && err == nil {
		err = fmt.Errorf("write output: %w", ferr)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if !*quiet {
		fmt.Fprintf(os.Stderr, "Rows read: %d\n", rowsRead)
		fmt.Fprintf(os.Stderr, "Statements written: %d\n", emitted)
		fmt.Fprintf(os.Stderr, "Duration: %s\n", time.Since(start).Round(time.Millisecond))
	}
}

// convert streams CSV rows from in, writing one INSERT statement per meter
// reading to w as batches complete.
func convert(in io.Reader, w io.Writer, batchSize int) (rowsRead, emitted int, err error) {
	reader := nem12.NewBatchReader(in, batchSize)
	pc := &nem12.ParserContext{}

	for {
		rows, rerr := reader.ReadBatch()

		if len(rows) > 0 {
			rowsRead += len(rows)
			for _, r := range nem12.Process(rows, pc) {
				if _, werr := fmt.Fprintln(w, nem12.Statement(r)); werr != nil {
					return rowsRead, emitted, fmt.Errorf("write output: %w", werr)
				}
				emitted++
			}
		}

		if rerr == io.EOF {
			return rowsRead, emitted, nil
		}
		if rerr != nil {
			return rowsRead, emitted, fmt.Errorf("Error parsing CSV file: %s", rerr.Error())
		}
	}
}

func fatalf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}
