package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigString(t *testing.T) {
	assert.Equal(t, "host=127.0.0.1 port=5432 dbname=postgres sslmode=prefer", Config{}.String())
	assert.Equal(t,
		"host=db port=6432 dbname=runes sslmode=disable user=indexer password=secret",
		Config{Host: "db", Port: "6432", DBName: "runes", SSLMode: "disable", User: "indexer", Password: "secret"}.String(),
	)
	assert.Equal(t, "postgres://localhost/runes", Config{URL: "postgres://localhost/runes", Host: "ignored"}.String())
}
