package runes

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/internal/kvstore/badgerdb"
	"github.com/gaze-network/runes-settlement/internal/kvstore/boltdb"
	runesconfig "github.com/gaze-network/runes-settlement/modules/runes/config"
	"github.com/gaze-network/runes-settlement/modules/runes/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDatabase(t *testing.T) {
	ctx := context.Background()

	t.Run("bolt", func(t *testing.T) {
		db, err := openDatabase(ctx, runesconfig.Config{
			Database: "bolt",
			Bolt:     boltdb.Config{Path: filepath.Join(t.TempDir(), "runes.db"), NoSync: true},
		})
		require.NoError(t, err)
		assert.NoError(t, db.Close())
	})
	t.Run("badger", func(t *testing.T) {
		db, err := openDatabase(ctx, runesconfig.Config{
			Database: "badger",
			Badger:   badgerdb.Config{InMemory: true},
		})
		require.NoError(t, err)
		assert.NoError(t, db.Close())
	})
	t.Run("unsupported", func(t *testing.T) {
		_, err := openDatabase(ctx, runesconfig.Config{Database: "leveldb"})
		assert.ErrorIs(t, err, errs.Unsupported)
	})
}

func TestNewEventHandler(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "events", "runes.jsonl")
		handler, closeSink, err := newEventHandler(runesconfig.EventsConfig{Sink: "file", Path: path})
		require.NoError(t, err)
		require.NoError(t, handler(context.Background(), event.Event{Type: event.TypeBlockStart, BlockHeight: 7}))
		closeSink()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"blockHeight":7`)
	})
	t.Run("file without path", func(t *testing.T) {
		_, _, err := newEventHandler(runesconfig.EventsConfig{Sink: "file"})
		assert.ErrorIs(t, err, errs.InvalidArgument)
	})
	t.Run("default", func(t *testing.T) {
		handler, closeSink, err := newEventHandler(runesconfig.EventsConfig{})
		require.NoError(t, err)
		defer closeSink()
		assert.NoError(t, handler(context.Background(), event.Event{Type: event.TypeBlockEnd}))
	})
	t.Run("unsupported", func(t *testing.T) {
		_, _, err := newEventHandler(runesconfig.EventsConfig{Sink: "kafka"})
		assert.ErrorIs(t, err, errs.Unsupported)
	})
}
