package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/large-farva/rehab-engine/internal/config"
	"github.com/large-farva/rehab-engine/internal/exercise"
	"github.com/large-farva/rehab-engine/internal/pose"
	"github.com/large-farva/rehab-engine/internal/session"
)

func sampleSet(conf float64) pose.Set {
	var s pose.Set
	for i := range s {
		s[i] = pose.Keypoint{Y: 0.1 * float64(i%10), X: 0.5, Confidence: conf}
	}
	return s
}

func TestRecordRoundTripPicksBestPerson(t *testing.T) {
	weak, strong := sampleSet(0.2), sampleSet(0.8)
	rec := Record{Seq: 7, TS: 1_700_000_000_000_000_000, Width: 320, Height: 240}
	for _, s := range []pose.Set{weak, strong} {
		rows := make([][3]float64, pose.NumJoints)
		for i, kp := range s {
			rows[i] = [3]float64{kp.Y, kp.X, kp.Confidence}
		}
		rec.People = append(rec.People, rows)
	}

	var buf bytes.Buffer
	if err := WriteRecord(&buf, rec); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	got, err := ReadRecord(&buf)
	if err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	f, err := got.Frame(640, 480)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if f.Width != 320 || f.Height != 240 || f.Seq != 7 {
		t.Fatalf("unexpected frame header %+v", f)
	}
	if f.Keypoints == nil || *f.Keypoints != strong {
		t.Fatalf("expected the more confident person")
	}
	if _, err := ReadRecord(&buf); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at the end, got %v", err)
	}
}

func TestRecordWithoutPeopleIsNoDetection(t *testing.T) {
	f, err := Record{Seq: 1}.Frame(640, 480)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if f.Detected() || f.Width != 640 || f.Height != 480 {
		t.Fatalf("expected an empty frame with fallback size, got %+v", f)
	}
}

func TestRecordWrongJointCount(t *testing.T) {
	rec := Record{People: [][][3]float64{make([][3]float64, 5)}}
	if _, err := rec.Frame(1, 1); !errors.Is(err, pose.ErrInvalidKeypoints) {
		t.Fatalf("expected ErrInvalidKeypoints, got %v", err)
	}
}

func TestReadRecordTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecord(&buf, Record{Seq: 1}); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	cut := buf.Bytes()[:buf.Len()-1]
	if _, err := ReadRecord(bytes.NewReader(cut)); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadRecordRejectsHugePrefix(t *testing.T) {
	if _, err := ReadRecord(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff})); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func quietDemo() *Demo {
	d := NewDemo(640, 480, 0, 1)
	d.Noise = 0
	d.DropEvery = 0
	return d
}

func TestDemoDrivesEveryExercise(t *testing.T) {
	for _, kind := range exercise.Kinds() {
		t.Run(kind.String(), func(t *testing.T) {
			cfg := config.Default()
			cfg.Session.Exercise = kind.String()
			p, err := session.New(session.Options{Cfg: cfg})
			if err != nil {
				t.Fatalf("session.New failed: %v", err)
			}
			d := quietDemo()
			ctx := context.Background()
			reps := 0
			for i := 0; i < 180; i++ {
				f, err := d.Next(ctx)
				if err != nil {
					t.Fatalf("Next failed: %v", err)
				}
				out, err := p.Process(f)
				if err != nil {
					t.Fatalf("Process failed: %v", err)
				}
				if out.Scored != nil {
					reps++
				}
			}
			if reps < 2 {
				t.Fatalf("expected at least 2 reps in three cycles, got %d", reps)
			}
		})
	}
}

func TestDemoDropsFrames(t *testing.T) {
	d := NewDemo(640, 480, 0, 1)
	d.DropEvery = 3
	ctx := context.Background()
	var missing int
	for i := 0; i < 9; i++ {
		f, _ := d.Next(ctx)
		if !f.Detected() {
			missing++
		}
	}
	if missing != 2 {
		t.Fatalf("expected frames 3 and 6 to be empty, got %d empty", missing)
	}
}

func TestRecorderAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.rec")
	rec, err := NewRecorder(quietDemo(), path, nil)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	ctx := context.Background()
	var want []pose.Frame
	for i := 0; i < 5; i++ {
		f, err := rec.Next(ctx)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		want = append(want, f)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if rec.Written() != 5 {
		t.Fatalf("expected 5 written, got %d", rec.Written())
	}

	r, err := OpenReplay(path, 1, 1, 0, false)
	if err != nil {
		t.Fatalf("OpenReplay failed: %v", err)
	}
	defer r.Close()
	var prev time.Time
	for i := 0; i < 5; i++ {
		f, err := r.Next(ctx)
		if err != nil {
			t.Fatalf("Next %d failed: %v", i, err)
		}
		if f.Width != 640 || *f.Keypoints != *want[i].Keypoints {
			t.Fatalf("frame %d differs from the recording", i)
		}
		if i > 0 && !f.At.After(prev) {
			t.Fatalf("frame %d timestamp did not advance", i)
		}
		prev = f.At
	}
	if _, err := r.Next(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestReplayLoops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.rec")
	var buf bytes.Buffer
	for i := 0; i < 2; i++ {
		s := sampleSet(0.9)
		f := pose.Frame{Seq: uint64(i), At: time.Unix(100+int64(i), 0), Width: 10, Height: 10, Keypoints: &s}
		if err := WriteRecord(&buf, RecordOf(f)); err != nil {
			t.Fatalf("WriteRecord failed: %v", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r, err := OpenReplay(path, 1, 1, 0, true)
	if err != nil {
		t.Fatalf("OpenReplay failed: %v", err)
	}
	defer r.Close()
	var prev time.Time
	for i := 0; i < 6; i++ {
		f, err := r.Next(context.Background())
		if err != nil {
			t.Fatalf("Next %d failed: %v", i, err)
		}
		if f.Seq != uint64(i) {
			t.Fatalf("expected seq %d, got %d", i, f.Seq)
		}
		if i > 0 && !f.At.After(prev) {
			t.Fatalf("frame %d went back in time: %s then %s", i, prev, f.At)
		}
		prev = f.At
	}
}

func TestReplayEmptyFileCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.rec")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err := OpenReplay(path, 1, 1, 0, true)
	if err != nil {
		t.Fatalf("OpenReplay failed: %v", err)
	}
	if _, err := r.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestPacedSourceHonoursCancel(t *testing.T) {
	d := NewDemo(640, 480, 0.5, 1)
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := d.Next(ctx); err != nil {
		t.Fatalf("first frame should not wait: %v", err)
	}
	cancel()
	if _, err := d.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func personRecord(seq uint64) Record {
	s := sampleSet(0.7)
	rows := make([][3]float64, pose.NumJoints)
	for j, kp := range s {
		rows[j] = [3]float64{kp.Y, kp.X, kp.Confidence}
	}
	return Record{Seq: seq, Width: 320, Height: 240, People: [][][3]float64{rows}}
}

// undecodable is a correctly framed record whose body is not msgpack.
var undecodable = []byte{0, 0, 0, 2, 0xc1, 0xc1}

// TestHelperProcess is not a real test. It stands in for a pose worker when
// re-executed by the worker tests. REHAB_HELPER_MODE picks what it writes.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("REHAB_WANT_HELPER_PROCESS") != "1" {
		return
	}
	write := func(rec Record) {
		if err := WriteRecord(os.Stdout, rec); err != nil {
			os.Exit(2)
		}
	}
	switch os.Getenv("REHAB_HELPER_MODE") {
	case "corrupt":
		write(personRecord(0))
		_, _ = os.Stdout.Write(undecodable)
		write(personRecord(2))
		write(personRecord(3))
	case "flood":
		write(personRecord(0))
		_, _ = os.Stdout.Write([]byte{0xff, 0xff, 0xff, 0xff})
		// Far more than a pipe buffer holds.
		_, _ = os.Stdout.Write(make([]byte, 512<<10))
	default:
		fmt.Fprintln(os.Stderr, "[INFO] model loaded")
		write(personRecord(0))
		write(Record{Seq: 1, Width: 320, Height: 240})
		write(personRecord(2))
	}
	os.Exit(0)
}

type lockedBuffer struct {
	ch chan string
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.ch <- string(p)
	return len(p), nil
}

func TestWorker(t *testing.T) {
	t.Setenv("REHAB_WANT_HELPER_PROCESS", "1")
	logs := &lockedBuffer{ch: make(chan string, 16)}
	logger := log.New(logs, "", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	w, err := StartWorker(ctx, os.Args[0], []string{"-test.run=^TestHelperProcess$"}, 640, 480, logger)
	if err != nil {
		t.Fatalf("StartWorker failed: %v", err)
	}

	var frames []pose.Frame
	for {
		f, err := w.Next(ctx)
		if errors.Is(err, ErrClosed) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		frames = append(frames, f)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if !frames[0].Detected() || frames[1].Detected() || frames[0].Width != 320 {
		t.Fatalf("unexpected frames %+v", frames)
	}
	if err := w.Wait(); err != nil {
		t.Fatalf("worker exit: %v", err)
	}

	var sawStderr bool
	for len(logs.ch) > 0 {
		if strings.Contains(<-logs.ch, "model loaded") {
			sawStderr = true
		}
	}
	if !sawStderr {
		t.Fatalf("expected worker stderr to be logged")
	}
}

func runHelperWorker(t *testing.T, mode string) (*Worker, []pose.Frame) {
	t.Helper()
	t.Setenv("REHAB_WANT_HELPER_PROCESS", "1")
	t.Setenv("REHAB_HELPER_MODE", mode)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	w, err := StartWorker(ctx, os.Args[0], []string{"-test.run=^TestHelperProcess$"}, 640, 480, nil)
	if err != nil {
		t.Fatalf("StartWorker failed: %v", err)
	}
	var frames []pose.Frame
	for {
		f, err := w.Next(ctx)
		if errors.Is(err, ErrClosed) {
			return w, frames
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		frames = append(frames, f)
	}
}

func TestWorkerSkipsUndecodableRecord(t *testing.T) {
	w, frames := runHelperWorker(t, "corrupt")
	var seqs []uint64
	for _, f := range frames {
		seqs = append(seqs, f.Seq)
	}
	if fmt.Sprint(seqs) != "[0 2 3]" {
		t.Fatalf("expected frames [0 2 3], got %v", seqs)
	}
	if w.Malformed() != 1 {
		t.Fatalf("expected 1 malformed record, got %d", w.Malformed())
	}
	if err := w.Wait(); err != nil {
		t.Fatalf("worker exit: %v", err)
	}
}

func TestWorkerDrainsStdoutAfterStreamError(t *testing.T) {
	w, frames := runHelperWorker(t, "flood")
	if len(frames) != 1 || frames[0].Seq != 0 {
		t.Fatalf("expected only frame 0, got %d frames", len(frames))
	}
	// The child must be able to finish its writes and exit on its own.
	if err := w.Wait(); err != nil {
		t.Fatalf("worker exit: %v", err)
	}
}

func TestReadRecordBadBodyKeepsAlignment(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecord(&buf, personRecord(0)); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	buf.Write(undecodable)
	if err := WriteRecord(&buf, personRecord(2)); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}

	rd := bytes.NewReader(buf.Bytes())
	if _, err := ReadRecord(rd); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if _, err := ReadRecord(rd); !errors.Is(err, ErrBadRecord) {
		t.Fatalf("expected ErrBadRecord, got %v", err)
	}
	rec, err := ReadRecord(rd)
	if err != nil || rec.Seq != 2 {
		t.Fatalf("expected record 2 after the bad one, got %+v, %v", rec, err)
	}
}

func TestReplaySkipsBadRecordAndClosesOnOversizedOne(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecord(&buf, personRecord(0)); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	buf.Write(undecodable)
	if err := WriteRecord(&buf, personRecord(2)); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff, 1, 2, 3})
	path := filepath.Join(t.TempDir(), "damaged.rec")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r, err := OpenReplay(path, 1, 1, 0, true)
	if err != nil {
		t.Fatalf("OpenReplay failed: %v", err)
	}
	ctx := context.Background()
	if f, err := r.Next(ctx); err != nil || f.Seq != 0 {
		t.Fatalf("frame 0: %+v, %v", f, err)
	}
	if _, err := r.Next(ctx); !errors.Is(err, ErrBadRecord) || errors.Is(err, ErrClosed) {
		t.Fatalf("expected a retryable ErrBadRecord, got %v", err)
	}
	if f, err := r.Next(ctx); err != nil || f.Seq != 2 {
		t.Fatalf("frame 2: %+v, %v", f, err)
	}
	if _, err := r.Next(ctx); !errors.Is(err, ErrFrameTooLarge) || !errors.Is(err, ErrClosed) {
		t.Fatalf("expected the oversized record to close the replay, got %v", err)
	}
	if _, err := r.Next(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed afterwards, got %v", err)
	}
}
