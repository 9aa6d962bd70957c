package trace

import (
	"bufio"
	"compress/gzip"
	"context"
	"io"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/pierrec/lz4/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/bashprof/bashprof/internal/errorutil"
)

const (
	defaultBatchSize = 100

	// Commands can be arbitrarily long one-liners; give the scanner
	// room before it gives up on a line.
	maxLineSize = 1 << 20
)

type (
	// Options tunes trace reading. The zero value picks sane defaults.
	Options struct {
		// Workers is the number of parallel parsing goroutines,
		// GOMAXPROCS when <= 0.
		Workers int
		// BatchSize is how many lines each parse task takes.
		BatchSize int
		// LineLimit caps how many input lines are considered, no limit
		// when <= 0. Used to cut down huge traces during testing.
		LineLimit int
	}

	batch struct {
		start int // 1-based line number of lines[0]
		lines []string
	}
)

// ReadTrace parses a raw trace stream into the measured record sequence:
// records sorted in original line order, each holding the time spent
// until its successor. The final record has no successor and is dropped.
//
// Line parsing fans out to a bounded worker pool; the merge-and-sort
// below is the only synchronization point before the single-threaded
// tree stages.
func ReadTrace(ctx context.Context, r io.Reader, opts Options) ([]Record, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	size := opts.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}

	var (
		mu      sync.Mutex
		records []Record
		dropped int
	)

	g, ctx := errgroup.WithContext(ctx)
	batches := make(chan batch, workers)

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for b := range batches {
				parsed := make([]Record, 0, len(b.lines))
				bad := 0
				for i, line := range b.lines {
					rec, ok := ParseLine(b.start+i, line)
					if !ok {
						bad++
						continue
					}
					parsed = append(parsed, rec)
				}
				mu.Lock()
				records = append(records, parsed...)
				dropped += bad
				mu.Unlock()
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(batches)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		lineno := 0
		lines := make([]string, 0, size)
		for scanner.Scan() {
			lineno++
			if opts.LineLimit > 0 && lineno > opts.LineLimit {
				break
			}
			lines = append(lines, scanner.Text())
			if len(lines) == size {
				select {
				case batches <- batch{start: lineno - len(lines) + 1, lines: lines}:
				case <-ctx.Done():
					return ctx.Err()
				}
				lines = make([]string, 0, size)
			}
		}
		if len(lines) > 0 {
			select {
			case batches <- batch{start: lineno - len(lines) + 1, lines: lines}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return scanner.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if dropped > 0 {
		log.Debug().Int("lines", dropped).Msg("discarded unparseable trace lines")
	}

	return Sequence(records)
}

// Sequence restores original line order and derives each record's
// SpentMicros from the timestamp delta to its successor. The final
// record has no successor and is dropped. Parse workers finish out of
// order even though each takes a contiguous slice, so the sort is not
// optional.
func Sequence(records []Record) ([]Record, error) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Idx < records[j].Idx
	})
	if len(records) < 2 {
		return nil, errorutil.ErrEmptyTrace
	}
	for i := 0; i < len(records)-1; i++ {
		records[i].SpentMicros = records[i+1].StampMicros - records[i].StampMicros
	}
	return records[:len(records)-1], nil
}

// Open opens a trace file for reading, decompressing lz4 and gzip
// streams transparently. "-" reads standard input.
func Open(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		// Too short to hold a compression header, let the parser see
		// whatever is there.
		return &wrappedReader{Reader: br, closer: f}, nil
	}
	switch {
	case magic[0] == 0x04 && magic[1] == 0x22 && magic[2] == 0x4d && magic[3] == 0x18:
		return &wrappedReader{Reader: lz4.NewReader(br), closer: f}, nil
	case magic[0] == 0x1f && magic[1] == 0x8b:
		zr, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &wrappedReader{Reader: zr, closer: f}, nil
	default:
		return &wrappedReader{Reader: br, closer: f}, nil
	}
}

type wrappedReader struct {
	io.Reader
	closer io.Closer
}

func (w *wrappedReader) Close() error {
	return w.closer.Close()
}
