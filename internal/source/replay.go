package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/large-farva/rehab-engine/internal/pose"
)

// Replay plays back a file written by Recorder. Timestamps are rebased to
// wall-clock time so rep durations stay meaningful across loops.
type Replay struct {
	path          string
	width, height int
	loop          bool

	f     *os.File
	rd    *bufio.Reader
	pace  *pacer
	seq   uint64
	base  time.Time
	first int64
	last  int64
	shift time.Duration
}

// OpenReplay opens path for playback at fps. Width and height apply to
// records that do not carry their own dimensions.
func OpenReplay(path string, width, height int, fps float64, loop bool) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Replay{
		path:   path,
		width:  width,
		height: height,
		loop:   loop,
		f:      f,
		rd:     bufio.NewReader(f),
		pace:   newPacer(fps),
		base:   time.Now(),
	}, nil
}

// Next implements Source.
func (r *Replay) Next(ctx context.Context) (pose.Frame, error) {
	if err := r.pace.wait(ctx); err != nil {
		return pose.Frame{}, err
	}
	if r.f == nil {
		return pose.Frame{}, ErrClosed
	}

	rec, err := ReadRecord(r.rd)
	if errors.Is(err, io.EOF) && r.loop && r.seq > 0 {
		if err := r.rewind(); err != nil {
			return pose.Frame{}, err
		}
		rec, err = ReadRecord(r.rd)
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			_ = r.Close()
			return pose.Frame{}, ErrClosed
		}
		if errors.Is(err, ErrBadRecord) {
			// The next record is still readable.
			r.seq++
			return pose.Frame{}, fmt.Errorf("replay %s: %w", r.path, err)
		}
		// A cut or oversized record leaves the file misaligned.
		_ = r.Close()
		return pose.Frame{}, fmt.Errorf("replay %s: %w: %w", r.path, err, ErrClosed)
	}

	f, err := rec.Frame(r.width, r.height)
	f.Seq = r.seq
	r.seq++
	f.At = r.rebase(rec.TS)
	return f, err
}

// rebase maps a recorded timestamp onto the playback clock. Records without
// a timestamp get the current time.
func (r *Replay) rebase(ts int64) time.Time {
	if ts == 0 {
		return time.Now()
	}
	if r.first == 0 {
		r.first = ts
	}
	r.last = ts
	return r.base.Add(r.shift + time.Duration(ts-r.first))
}

func (r *Replay) rewind() error {
	if _, err := r.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("replay %s: rewind: %w", r.path, err)
	}
	r.rd.Reset(r.f)
	// Keep time moving forward across the loop boundary.
	if r.first != 0 {
		r.shift += time.Duration(r.last-r.first) + r.pace.interval
		if r.pace.interval == 0 {
			r.shift += time.Millisecond
		}
	}
	return nil
}

// Close releases the file. Further calls to Next return ErrClosed.
func (r *Replay) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
