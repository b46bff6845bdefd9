package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/large-farva/rehab-engine/internal/pose"
)

// Worker runs an external pose-estimation process and reads framed
// records from its stdout. The process owns the camera and the model; this
// side only decodes keypoints. Stderr is forwarded to the logger line by
// line.
type Worker struct {
	Command       string
	Args          []string
	Width, Height int
	Log           *log.Logger

	cmd     *exec.Cmd
	frames  chan pose.Frame
	wg      sync.WaitGroup
	dropped atomic.Uint64
	bad     atomic.Uint64
	exitErr error
	done    chan struct{}
}

// workerBuffer is how many decoded frames may queue ahead of the frame loop
// before new ones are dropped.
const workerBuffer = 8

// StartWorker spawns the process. It stops when ctx is cancelled.
func StartWorker(ctx context.Context, command string, args []string, width, height int, logger *log.Logger) (*Worker, error) {
	w := &Worker{
		Command: command,
		Args:    args,
		Width:   width,
		Height:  height,
		Log:     logger,
		frames:  make(chan pose.Frame, workerBuffer),
		done:    make(chan struct{}),
	}

	w.cmd = exec.CommandContext(ctx, command, args...)
	stdout, err := w.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout pipe: %w", err)
	}
	stderr, err := w.cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stderr pipe: %w", err)
	}
	if err := w.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", command, err)
	}
	w.logf("worker: started %s (pid %d)", command, w.cmd.Process.Pid)

	w.wg.Add(2)
	go w.readFrames(stdout)
	go w.logStderr(stderr)
	go w.waitProcess()

	return w, nil
}

// Next implements Source.
func (w *Worker) Next(ctx context.Context) (pose.Frame, error) {
	select {
	case <-ctx.Done():
		return pose.Frame{}, ctx.Err()
	case f, ok := <-w.frames:
		if !ok {
			return pose.Frame{}, ErrClosed
		}
		return f, nil
	}
}

// Dropped counts frames discarded because the frame loop fell behind.
func (w *Worker) Dropped() uint64 {
	return w.dropped.Load()
}

// Malformed counts records that could not be turned into frames.
func (w *Worker) Malformed() uint64 {
	return w.bad.Load()
}

// Wait blocks until the process has exited and returns its exit error.
func (w *Worker) Wait() error {
	<-w.done
	return w.exitErr
}

func (w *Worker) readFrames(stdout io.Reader) {
	defer w.wg.Done()
	rd := bufio.NewReader(stdout)
	for {
		rec, err := ReadRecord(rd)
		if errors.Is(err, ErrBadRecord) {
			w.bad.Add(1)
			w.logf("worker: %v", err)
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				w.logf("worker: stdout: %v; discarding the rest of the stream", err)
				// Keep reading so the process never blocks on a full pipe.
				_, _ = io.Copy(io.Discard, rd)
			}
			return
		}
		f, err := rec.Frame(w.Width, w.Height)
		if err != nil {
			w.bad.Add(1)
			w.logf("worker: record %d: %v", rec.Seq, err)
			continue
		}
		select {
		case w.frames <- f:
		default:
			w.dropped.Add(1)
		}
	}
}

func (w *Worker) logStderr(stderr io.Reader) {
	defer w.wg.Done()
	sc := bufio.NewScanner(stderr)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			w.logf("worker: %s", line)
		}
	}
}

// waitProcess reaps the child once both pipes have drained, then closes the
// frame channel so Next reports ErrClosed.
func (w *Worker) waitProcess() {
	w.wg.Wait()
	err := w.cmd.Wait()
	if err != nil {
		w.logf("worker: exited: %v", err)
	} else {
		w.logf("worker: exited cleanly")
	}
	w.exitErr = err
	close(w.frames)
	close(w.done)
}

func (w *Worker) logf(format string, args ...any) {
	if w.Log != nil {
		w.Log.Printf(format, args...)
	}
}
