package config

import (
	"github.com/gaze-network/runes-settlement/internal/kvstore/badgerdb"
	"github.com/gaze-network/runes-settlement/internal/kvstore/boltdb"
	"github.com/gaze-network/runes-settlement/internal/postgres"
)

type Config struct {
	Datasource  string          `mapstructure:"datasource"` // Datasource to fetch bitcoin data for Meta-Protocol e.g. `bitcoin-node`
	Database    string          `mapstructure:"database"`   // Database to store runes data. `bolt` (default) | `badger` | `postgres`
	Bolt        boltdb.Config   `mapstructure:"bolt"`
	Badger      badgerdb.Config `mapstructure:"badger"`
	Postgres    postgres.Config `mapstructure:"postgres"`
	APIHandlers []string        `mapstructure:"api_handlers"` // List of API handlers to enable. (e.g. `http`)

	// UndoRetention is the number of most recent blocks that can be reverted on reorg.
	UndoRetention uint64       `mapstructure:"undo_retention"`
	Events        EventsConfig `mapstructure:"events"`
}

type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
	// Sink receives every emitted event. `log` (default) | `file` | `discard`
	Sink string `mapstructure:"sink"`
	// Path of the JSON lines file written by the `file` sink.
	Path string `mapstructure:"path"`
}
