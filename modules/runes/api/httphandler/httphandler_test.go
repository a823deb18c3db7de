package httphandler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/gaze-network/runes-settlement/common"
	"github.com/gaze-network/runes-settlement/internal/kvstore/boltdb"
	"github.com/gaze-network/runes-settlement/modules/runes/internal/entity"
	"github.com/gaze-network/runes-settlement/modules/runes/repository/kv"
	"github.com/gaze-network/runes-settlement/modules/runes/runes"
	"github.com/gaze-network/runes-settlement/modules/runes/usecase"
	"github.com/gaze-network/runes-settlement/pkg/errorhandler"
	"github.com/gaze-network/uint128"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testRuneId   = runes.RuneId{BlockHeight: 840000, TxIndex: 3}
	testOutPoint = wire.OutPoint{Hash: chainhash.HashH([]byte("transfer")), Index: 1}
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	ctx := context.Background()

	db, err := boltdb.New(boltdb.Config{Path: filepath.Join(t.TempDir(), "runes.db"), NoSync: true}, kv.Tables...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := kv.NewRepository(db)

	tx, err := repo.BeginRunesTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	entry := &runes.RuneEntry{
		RuneId:       testRuneId,
		Number:       1,
		Divisibility: 2,
		Premine:      uint128.From64(1000),
		SpacedRune:   runes.NewSpacedRune(runes.NewRune(99246114928149462), 0),
		Symbol:       '$',
		Terms: &runes.Terms{
			Amount: lo.ToPtr(uint128.From64(150)),
			Cap:    lo.ToPtr(uint128.From64(10)),
		},
		Mints:         uint128.From64(2),
		EtchingBlock:  testRuneId.BlockHeight,
		EtchingTxHash: chainhash.HashH([]byte("etching")),
		EtchedAt:      time.Unix(1713571767, 0).UTC(),
	}
	require.NoError(t, tx.SetRuneEntry(ctx, entry))
	require.NoError(t, tx.SetRuneIdByRune(ctx, entry.SpacedRune.Rune, testRuneId))
	require.NoError(t, tx.CreateRunesBalancesAtOutPoint(ctx, &entity.OutPointBalance{
		OutPoint: testOutPoint,
		Owner:    lo.ToPtr("tb1qowner"),
		Balances: []entity.Balance{{RuneId: testRuneId, Amount: uint128.From64(1250)}},
	}))
	require.NoError(t, tx.CreateIndexedBlock(ctx, &entity.IndexedBlock{
		Height:     840000,
		Hash:       chainhash.HashH([]byte("block")),
		EventHash:  chainhash.HashH([]byte("events")),
		EventCount: 4,
	}))
	require.NoError(t, tx.Commit(ctx))

	app := fiber.New(fiber.Config{ErrorHandler: errorhandler.NewHTTPErrorHandler()})
	require.NoError(t, New(common.NetworkMainnet, usecase.New(repo)).Mount(app))
	return app
}

func get(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	decoded := map[string]any{}
	require.NoError(t, json.Unmarshal(body, &decoded), string(body))
	return resp.StatusCode, decoded
}

func result(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	result, ok := body["result"].(map[string]any)
	require.True(t, ok, "response has no result: %v", body)
	return result
}

func TestGetCurrentBlock(t *testing.T) {
	status, body := get(t, newTestApp(t), "/v1/runes/block")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 840000, result(t, body)["height"])
}

func TestGetBlock(t *testing.T) {
	app := newTestApp(t)

	status, body := get(t, app, "/v1/runes/blocks/840000")
	require.Equal(t, http.StatusOK, status)
	block := result(t, body)
	assert.Equal(t, chainhash.HashH([]byte("events")).String(), block["eventHash"])
	assert.EqualValues(t, 4, block["eventCount"])

	status, _ = get(t, app, "/v1/runes/blocks/1")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = get(t, app, "/v1/runes/blocks/-1")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGetRuneEntry(t *testing.T) {
	app := newTestApp(t)

	status, body := get(t, app, "/v1/runes/entries/840000:3")
	require.Equal(t, http.StatusOK, status)
	entry := result(t, body)
	assert.Equal(t, "840000:3", entry["id"])
	assert.Equal(t, "$", entry["symbol"])
	assert.Equal(t, "10", entry["premine"])
	assert.Equal(t, "13", entry["mintedAmount"])
	assert.Equal(t, "25", entry["supply"])
	assert.Equal(t, "2", entry["mints"])

	// the same entry, by name
	status, body = get(t, app, "/v1/runes/entries/"+result(t, body)["spacedRune"].(string))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "840000:3", result(t, body)["id"])

	status, _ = get(t, app, "/v1/runes/entries/1:1")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = get(t, app, "/v1/runes/entries/not-a-rune!")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGetOutPoint(t *testing.T) {
	app := newTestApp(t)

	status, body := get(t, app, "/v1/runes/outpoints/"+testOutPoint.Hash.String()+"/1")
	require.Equal(t, http.StatusOK, status)
	outPoint := result(t, body)
	assert.Equal(t, "tb1qowner", outPoint["address"])
	balances, ok := outPoint["runes"].([]any)
	require.True(t, ok)
	require.Len(t, balances, 1)
	balance := balances[0].(map[string]any)
	assert.Equal(t, "1250", balance["amount"])
	assert.Equal(t, "12.5", balance["decimal"])

	status, _ = get(t, app, "/v1/runes/outpoints/"+testOutPoint.Hash.String()+"/0")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = get(t, app, "/v1/runes/outpoints/zz/0")
	assert.Equal(t, http.StatusBadRequest, status)
}
