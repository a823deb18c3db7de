package boltdb

import (
	"path/filepath"
	"testing"

	"github.com/gaze-network/runes-settlement/internal/kvstore"
	"github.com/gaze-network/runes-settlement/internal/kvstore/kvstoretest"
	"github.com/stretchr/testify/require"
)

func TestBoltDB(t *testing.T) {
	kvstoretest.Run(t, func(t *testing.T) kvstore.DB {
		db, err := New(Config{Path: filepath.Join(t.TempDir(), "runes.db"), NoSync: true}, kvstoretest.TableA, kvstoretest.TableB)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return db
	})
}
