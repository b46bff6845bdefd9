package source

import (
	"bufio"
	"context"
	"log"
	"os"
	"sync"

	"github.com/large-farva/rehab-engine/internal/pose"
)

// Recorder tees every frame from an inner source into a replay file.
type Recorder struct {
	inner Source
	log   *log.Logger

	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
	n  uint64
}

// NewRecorder creates (or truncates) path and wraps inner.
func NewRecorder(inner Source, path string, logger *log.Logger) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Recorder{inner: inner, log: logger, f: f, w: bufio.NewWriter(f)}, nil
}

// Next implements Source. A write failure is logged and stops recording;
// the frame itself is still handed on.
func (r *Recorder) Next(ctx context.Context) (pose.Frame, error) {
	f, err := r.inner.Next(ctx)
	if err != nil {
		return f, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return f, nil
	}
	if werr := WriteRecord(r.w, RecordOf(f)); werr != nil {
		if r.log != nil {
			r.log.Printf("recorder: frame %d: %v; recording stopped", f.Seq, werr)
		}
		_ = r.f.Close()
		r.w, r.f = nil, nil
		return f, nil
	}
	r.n++
	return f, nil
}

// Written is the number of frames recorded so far.
func (r *Recorder) Written() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Close flushes and closes the file. The inner source is not closed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	ferr := r.w.Flush()
	cerr := r.f.Close()
	r.w, r.f = nil, nil
	if ferr != nil {
		return ferr
	}
	return cerr
}
