package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"triscan/internal/config"
	"triscan/internal/model"
)

func newTestPublisher(t *testing.T) (*Publisher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	p, err := NewPublisher(context.Background(), config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "triscan:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, mr
}

func TestPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	p, mr := newTestPublisher(t)

	yfi := model.Cycle{Fiat: "USD", Intermediate: "BTC", Token: "YFI"}
	eth := model.Cycle{Fiat: "USD", Intermediate: "BTC", Token: "ETH"}
	ada := model.Cycle{Fiat: "USDT", Intermediate: "BTC", Token: "ADA"}

	report := &model.ScanReport{
		ID:         "scan-1",
		FinishedAt: time.UnixMilli(1700000000000),
		Results: []model.CycleResult{
			{Cycle: yfi, ProfitMultiple: 1.05, Status: model.CycleOK},
			{Cycle: eth, ProfitMultiple: 0.99, Status: model.CycleOK},
			{Cycle: ada, Status: model.CycleUnavailable, Reason: "no ask available for ADABTC"},
		},
	}
	require.NoError(t, p.Publish(ctx, report))

	assert.Equal(t, "1.05", mr.HGet("triscan:cycle:USD:BTC:YFI", "profit"))
	assert.Equal(t, "ok", mr.HGet("triscan:cycle:USD:BTC:YFI", "status"))
	assert.Equal(t, "1700000000000", mr.HGet("triscan:cycle:USD:BTC:YFI", "ts_ms"))
	assert.Equal(t, "unavailable", mr.HGet("triscan:cycle:USDT:BTC:ADA", "status"))
	assert.Equal(t, "no ask available for ADABTC", mr.HGet("triscan:cycle:USDT:BTC:ADA", "reason"))

	top, err := p.Top(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "USD:BTC:YFI", top[0].Member)
	assert.Equal(t, 1.05, top[0].Score)

	// The next scan loses the YFI quote: it drops out of the ranking.
	report2 := &model.ScanReport{
		ID:         "scan-2",
		FinishedAt: time.UnixMilli(1700000060000),
		Results: []model.CycleResult{
			{Cycle: yfi, Status: model.CycleUnavailable, Reason: "no bid available for YFIUSD"},
			{Cycle: eth, ProfitMultiple: 1.01, Status: model.CycleOK},
		},
	}
	require.NoError(t, p.Publish(ctx, report2))

	top, err = p.Top(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "USD:BTC:ETH", top[0].Member)
	assert.Equal(t, 1.01, top[0].Score)
	assert.Equal(t, "scan-2", mr.HGet("triscan:cycle:USD:BTC:YFI", "scan_id"))
	assert.Equal(t, "", mr.HGet("triscan:cycle:USD:BTC:YFI", "profit"))
}

func TestPublisher_Publish_DelistedCycleLeavesRanking(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPublisher(t)

	yfi := model.Cycle{Fiat: "USD", Intermediate: "BTC", Token: "YFI"}
	ltc := model.Cycle{Fiat: "USD", Intermediate: "BTC", Token: "LTC"}

	require.NoError(t, p.Publish(ctx, &model.ScanReport{
		ID: "scan-1",
		Results: []model.CycleResult{
			{Cycle: yfi, ProfitMultiple: 1.2, Status: model.CycleOK},
			{Cycle: ltc, ProfitMultiple: 1.1, Status: model.CycleOK},
		},
	}))

	// YFI is no longer listed, so the scan does not enumerate it at all.
	require.NoError(t, p.Publish(ctx, &model.ScanReport{
		ID: "scan-2",
		Results: []model.CycleResult{
			{Cycle: ltc, ProfitMultiple: 1.0, Status: model.CycleOK},
		},
	}))

	top, err := p.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "USD:BTC:LTC", top[0].Member)
}

func TestNewPublisher_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewPublisher(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
