package source

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/large-farva/rehab-engine/internal/config"
)

// Open builds the source described by cfg. If record is non-empty the
// source is wrapped in a Recorder. The returned closer releases files; it is
// never nil.
func Open(ctx context.Context, cfg config.SourceConfig, record string, logger *log.Logger) (Source, io.Closer, error) {
	var (
		src    Source
		closer closers
	)

	switch cfg.Kind {
	case "demo":
		src = NewDemo(cfg.FrameWidth, cfg.FrameHeight, cfg.FPS, uint64(time.Now().UnixNano()))
	case "replay":
		r, err := OpenReplay(cfg.Path, cfg.FrameWidth, cfg.FrameHeight, cfg.FPS, cfg.Loop)
		if err != nil {
			return nil, closer, fmt.Errorf("open replay: %w", err)
		}
		src = r
		closer = append(closer, r)
	case "worker":
		w, err := StartWorker(ctx, cfg.Command, cfg.Args, cfg.FrameWidth, cfg.FrameHeight, logger)
		if err != nil {
			return nil, closer, err
		}
		src = w
	default:
		return nil, closer, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}

	if record != "" {
		rec, err := NewRecorder(src, record, logger)
		if err != nil {
			_ = closer.Close()
			return nil, closers{}, fmt.Errorf("open recording: %w", err)
		}
		src = rec
		closer = append(closer, rec)
	}
	return src, closer, nil
}

type closers []io.Closer

func (c closers) Close() error {
	var first error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
