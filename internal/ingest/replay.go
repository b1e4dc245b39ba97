package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/metrics"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
)

// Replay loop timing
const (
	enqueuePoll     = 50 * time.Millisecond
	eofSleep        = 200 * time.Millisecond
	idleSleep       = 300 * time.Millisecond
	checkpointEvery = 1000
)

// Replayer tails the durable log from the checkpoint and feeds the
// queue. It is the authoritative delivery path: the producer's direct
// enqueue is only an optimization, reconciled through TrySkip so records
// are not delivered twice in steady state.
type Replayer struct {
	logPath string
	cp      *Checkpointer
	queue   *Queue
	metrics *metrics.Registry
	logger  zerolog.Logger

	mu  sync.Mutex
	off int64
}

// NewReplayer creates the replay loop over the log at logPath
func NewReplayer(logPath string, cp *Checkpointer, q *Queue, m *metrics.Registry, logger zerolog.Logger) *Replayer {
	return &Replayer{logPath: logPath, cp: cp, queue: q, metrics: m, logger: logger}
}

// Offset returns the current replay offset (bytes handed off to the queue)
func (r *Replayer) Offset() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.off
}

func (r *Replayer) setOffset(off int64) {
	r.mu.Lock()
	r.off = off
	r.mu.Unlock()
	r.metrics.SetCheckpointOffset(off)
}

// advance moves the offset from->to; it fails when someone else (the
// producer skip path) already moved it, in which case the caller's read
// is stale and must be discarded.
func (r *Replayer) advance(from, to int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.off != from {
		return false
	}
	r.off = to
	r.metrics.SetCheckpointOffset(to)
	return true
}

// TrySkip marks the byte range [from, to) as already handed off by the
// producer path. It only succeeds when the replay loop has caught up to
// exactly `from`; otherwise the loop is behind and will re-read the
// record (a duplicate the store absorbs).
func (r *Replayer) TrySkip(from, to int64) bool {
	return r.advance(from, to)
}

// Run tails the log until ctx is cancelled. Never returns an error:
// corrupted lines are skipped and counted, missing files are waited out.
func (r *Replayer) Run(ctx context.Context) {
	off := r.cp.Load()
	if size, err := fileSize(r.logPath); err == nil && off > size {
		// log rotated or truncated below the checkpoint
		r.logger.Warn().Int64("checkpoint", off).Int64("size", size).Msg("checkpoint beyond log size, resetting to 0")
		off = 0
	}
	r.setOffset(off)

	var f *os.File
	var reader *bufio.Reader
	// readPos is how far the reader has consumed; it falls behind the
	// offset when the producer skips a record while the reader sits at EOF
	var readPos int64
	defer func() {
		if f != nil {
			f.Close()
		}
	}()

	reopen := func() bool {
		if f != nil {
			f.Close()
			f = nil
		}
		var err error
		f, err = os.Open(r.logPath)
		if err != nil {
			return false
		}
		off := r.Offset()
		if _, err := f.Seek(off, io.SeekStart); err != nil {
			f.Close()
			f = nil
			return false
		}
		reader = bufio.NewReader(f)
		readPos = off
		return true
	}

	for !reopen() {
		if !sleepCtx(ctx, eofSleep) {
			return
		}
	}

	pending := 0
	checkpoint := func() {
		off := r.Offset()
		if err := r.cp.Save(off); err != nil {
			r.logger.Error().Err(err).Int64("offset", off).Msg("checkpoint save failed")
		}
		pending = 0
	}

	for {
		if ctx.Err() != nil {
			checkpoint()
			return
		}

		lineStart := r.Offset()
		if lineStart != readPos && reopen() {
			continue
		}
		line, err := reader.ReadBytes('\n')
		if err != nil {
			readPos += int64(len(line))
			// EOF (possibly mid-line): the partial tail is not a record.
			// Checkpoint, wait for growth, and re-seek so the partial
			// bytes are re-read once their newline lands.
			checkpoint()
			if !sleepCtx(ctx, eofSleep) {
				return
			}
			size, serr := fileSize(r.logPath)
			if serr != nil {
				continue
			}
			cur := r.Offset()
			if size < cur {
				// rotation: start over from the beginning
				r.logger.Warn().Int64("offset", cur).Int64("size", size).Msg("log shrank below offset, replaying from 0")
				r.setOffset(0)
				reopen()
				continue
			}
			if size > cur {
				reopen()
				continue
			}
			if !sleepCtx(ctx, idleSleep) {
				return
			}
			continue
		}

		n := int64(len(line))
		readPos += n
		var rec model.IngestRecord
		if uerr := json.Unmarshal(bytes.TrimRight(line, "\n"), &rec); uerr != nil {
			r.metrics.RecordError(metrics.ErrReplayParse)
			r.logger.Error().Err(uerr).Int64("offset", lineStart).Msg("unparseable log line, skipping")
			if !r.advance(lineStart, lineStart+n) {
				reopen()
				continue
			}
			checkpoint()
			continue
		}

		for !r.queue.TryEnqueue(rec) {
			if !sleepCtx(ctx, enqueuePoll) {
				checkpoint()
				return
			}
		}
		r.metrics.IncEnqueued()

		if !r.advance(lineStart, lineStart+n) {
			// producer skipped past this record while we were enqueuing;
			// the duplicate is absorbed downstream. Re-align the reader.
			reopen()
			continue
		}
		pending++
		if pending >= checkpointEvery {
			checkpoint()
		}
	}
}

func fileSize(path string) (int64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// sleepCtx sleeps for d; returns false if ctx was cancelled first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
