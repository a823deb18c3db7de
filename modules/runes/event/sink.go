package event

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/pkg/logger"
	"github.com/gaze-network/runes-settlement/pkg/logger/slogx"
)

// Handler processes a delivered event. An error stops Consume.
type Handler func(ctx context.Context, ev Event) error

// Consume passes every event of ch to handle until ch is closed or ctx is done.
func Consume(ctx context.Context, ch <-chan Event, handle Handler) error {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := handle(ctx, ev); err != nil {
				return errors.Wrapf(err, "failed to handle %s event", ev.Type)
			}
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		}
	}
}

// LogHandler logs events, block brackets at info level and the rest at debug level.
func LogHandler() Handler {
	return func(ctx context.Context, ev Event) error {
		level := slog.LevelDebug
		switch ev.Type {
		case TypeBlockEnd, TypeReorgDetected:
			level = slog.LevelInfo
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return errors.WithStack(err)
		}
		logger.LogAttrs(ctx, level, "Runes event",
			slogx.String("type", string(ev.Type)),
			slogx.Uint64("height", ev.BlockHeight),
			slogx.String("event", string(payload)),
		)
		return nil
	}
}

// JSONLinesHandler writes one JSON document per event to w.
func JSONLinesHandler(w io.Writer) Handler {
	encoder := json.NewEncoder(w)
	return func(_ context.Context, ev Event) error {
		return errors.WithStack(encoder.Encode(ev))
	}
}

// DiscardHandler drops every event.
func DiscardHandler() Handler {
	return func(context.Context, Event) error { return nil }
}
