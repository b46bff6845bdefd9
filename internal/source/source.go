// Package source provides the keypoint sources that feed the frame loop: a
// synthetic demo body, a replay of recorded frames, and an external pose
// worker process. Recorded and worker frames share one wire format, a
// 4-byte big-endian length prefix followed by a msgpack Record.
package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/large-farva/rehab-engine/internal/pose"
)

// ErrClosed is returned by Next once a source has no more frames.
var ErrClosed = errors.New("source closed")

// ErrFrameTooLarge guards against reading a corrupt length prefix.
var ErrFrameTooLarge = errors.New("frame record too large")

// ErrBadRecord marks a record whose body was read in full but could not be
// decoded. The stream is still aligned on the next record.
var ErrBadRecord = errors.New("bad frame record")

// MaxRecordSize bounds a single encoded Record.
const MaxRecordSize = 1 << 20

// Source yields one frame per call. Next blocks until a frame is ready,
// ctx is done, or the source is exhausted (ErrClosed).
type Source interface {
	Next(ctx context.Context) (pose.Frame, error)
}

// Record is the wire form of one frame. People holds zero or more candidate
// skeletons, each 17 rows of [y, x, confidence].
type Record struct {
	Seq    uint64         `msgpack:"seq"`
	TS     int64          `msgpack:"ts"`
	Width  int            `msgpack:"w"`
	Height int            `msgpack:"h"`
	People [][][3]float64 `msgpack:"people"`
}

// RecordOf converts a frame into its wire form.
func RecordOf(f pose.Frame) Record {
	r := Record{Seq: f.Seq, Width: f.Width, Height: f.Height}
	if !f.At.IsZero() {
		r.TS = f.At.UnixNano()
	}
	if f.Keypoints != nil {
		rows := make([][3]float64, pose.NumJoints)
		for i, kp := range f.Keypoints {
			rows[i] = [3]float64{kp.Y, kp.X, kp.Confidence}
		}
		r.People = [][][3]float64{rows}
	}
	return r
}

// Frame converts a record back into a frame. When several people are present
// the one with the highest mean confidence wins. Record dimensions override
// the fallback width and height when set.
func (r Record) Frame(fallbackW, fallbackH int) (pose.Frame, error) {
	f := pose.Frame{Seq: r.Seq, Width: r.Width, Height: r.Height}
	if r.TS != 0 {
		f.At = time.Unix(0, r.TS)
	}
	if f.Width <= 0 {
		f.Width = fallbackW
	}
	if f.Height <= 0 {
		f.Height = fallbackH
	}
	if len(r.People) == 0 {
		return f, nil
	}

	candidates := make([]pose.Set, len(r.People))
	for i, rows := range r.People {
		if len(rows) != pose.NumJoints {
			return f, fmt.Errorf("%w: person %d has %d joints", pose.ErrInvalidKeypoints, i, len(rows))
		}
		for j, row := range rows {
			candidates[i][j] = pose.Keypoint{Y: row[0], X: row[1], Confidence: row[2]}
		}
	}
	f.Keypoints = pose.BestPerson(candidates)
	return f, nil
}

// WriteRecord encodes r with its length prefix.
func WriteRecord(w io.Writer, r Record) error {
	body, err := msgpack.Marshal(&r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadRecord decodes one length-prefixed record. It returns io.EOF only at a
// clean record boundary; a stream cut mid-record yields io.ErrUnexpectedEOF.
// An undecodable body yields ErrBadRecord and leaves the reader positioned
// on the next record. Any other error means the stream is no longer usable.
func ReadRecord(rd io.Reader) (Record, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(rd, prefix[:]); err != nil {
		return Record{}, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxRecordSize {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(rd, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Record{}, err
	}
	var r Record
	if err := msgpack.Unmarshal(body, &r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	return r, nil
}

// pacer spaces calls to wait at a fixed interval. A zero interval never
// blocks.
type pacer struct {
	interval time.Duration
	next     time.Time
}

func newPacer(fps float64) *pacer {
	if fps <= 0 {
		return &pacer{}
	}
	return &pacer{interval: time.Duration(float64(time.Second) / fps)}
}

func (p *pacer) wait(ctx context.Context) error {
	if p.interval == 0 {
		return ctx.Err()
	}
	now := time.Now()
	if p.next.IsZero() || now.After(p.next.Add(p.interval)) {
		// First frame, or we fell behind by more than a frame: resync.
		p.next = now
	}
	d := p.next.Sub(now)
	p.next = p.next.Add(p.interval)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
