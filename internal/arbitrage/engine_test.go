package arbitrage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"triscan/internal/config"
	"triscan/internal/model"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) LogScan(ctx context.Context, report model.ScanReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockRepository) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, report *model.ScanReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

type MockSource struct {
	mock.Mock
}

func (m *MockSource) FetchPairs(ctx context.Context) ([]model.TradingPair, error) {
	args := m.Called(ctx)
	pairs, _ := args.Get(0).([]model.TradingPair)
	return pairs, args.Error(1)
}

type observation struct {
	report *model.ScanReport
	err    error
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (r *recordingObserver) Observe(report *model.ScanReport, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, observation{report: report, err: err})
}

func testConfig() *config.Config {
	return &config.Config{
		Exchange: config.ExchangeConfig{Name: "binanceus"},
		Scan: config.ScanConfig{
			Workers:           2,
			TimeoutMS:         5000,
			MinProfitMultiple: 1.0,
		},
	}
}

func TestArbitrageEngine_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("completed scan is stored and published", func(t *testing.T) {
		source := new(MockSource)
		source.On("FetchPairs", mock.Anything).Return(marketPairs(), nil).Once()
		repo := new(MockRepository)
		repo.On("LogScan", ctx, mock.MatchedBy(func(r model.ScanReport) bool {
			return r.Exchange == "binanceus" && r.Complete && len(r.Results) == 4
		})).Return(nil).Once()
		pub := new(MockPublisher)
		pub.On("Publish", ctx, mock.AnythingOfType("*model.ScanReport")).Return(nil).Once()
		obs := &recordingObserver{}

		engine := NewArbitrageEngine(testLogger(), testConfig(), source, &fakeOracle{quotes: marketQuotes()},
			WithRepository(repo), WithPublisher(pub), WithObserver(obs))

		report, err := engine.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, "binanceus", report.Exchange)
		assert.Len(t, report.Opportunities(1.0), 4)

		source.AssertExpectations(t)
		repo.AssertExpectations(t)
		pub.AssertExpectations(t)
		require.Len(t, obs.seen, 1)
		assert.NoError(t, obs.seen[0].err)
		assert.Same(t, report, obs.seen[0].report)
	})

	t.Run("fetch failure is surfaced and nothing is stored", func(t *testing.T) {
		source := new(MockSource)
		source.On("FetchPairs", mock.Anything).Return(nil, &model.TransportError{Op: "exchangeInfo", Err: errors.New("dial tcp: i/o timeout")})
		repo := new(MockRepository)
		obs := &recordingObserver{}

		engine := NewArbitrageEngine(testLogger(), testConfig(), source, &fakeOracle{}, WithRepository(repo), WithObserver(obs))

		report, err := engine.RunOnce(ctx)
		var terr *model.TransportError
		require.ErrorAs(t, err, &terr)
		assert.Nil(t, report)
		repo.AssertNotCalled(t, "LogScan", mock.Anything, mock.Anything)
		require.Len(t, obs.seen, 1)
		assert.Error(t, obs.seen[0].err)
	})

	t.Run("malformed metadata aborts the scan", func(t *testing.T) {
		bad := append(marketPairs(), model.TradingPair{Symbol: "ETHUSD", BaseAsset: "ETH", QuoteAsset: "USDT"})
		source := new(MockSource)
		source.On("FetchPairs", mock.Anything).Return(bad, nil)
		oracle := &fakeOracle{quotes: marketQuotes()}

		engine := NewArbitrageEngine(testLogger(), testConfig(), source, oracle)

		_, err := engine.RunOnce(ctx)
		var malformed *model.MalformedPairError
		require.ErrorAs(t, err, &malformed)
		assert.Equal(t, int32(0), oracle.calls.Load())
	})

	t.Run("transport error during pricing is not stored", func(t *testing.T) {
		source := new(MockSource)
		source.On("FetchPairs", mock.Anything).Return(marketPairs(), nil)
		repo := new(MockRepository)
		oracle := &fakeOracle{quotes: marketQuotes(), failing: map[string]bool{"USDTUSD": true}}

		engine := NewArbitrageEngine(testLogger(), testConfig(), source, oracle, WithRepository(repo))

		report, err := engine.RunOnce(ctx)
		var terr *model.TransportError
		require.ErrorAs(t, err, &terr)
		require.NotNil(t, report)
		assert.False(t, report.Complete)
		repo.AssertNotCalled(t, "LogScan", mock.Anything, mock.Anything)
	})

	t.Run("sink failures do not fail the scan", func(t *testing.T) {
		source := new(MockSource)
		source.On("FetchPairs", mock.Anything).Return(marketPairs(), nil)
		repo := new(MockRepository)
		repo.On("LogScan", mock.Anything, mock.Anything).Return(errors.New("postgres: begin: conn closed")).Once()
		pub := new(MockPublisher)
		pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("redis: publish: EOF")).Once()

		engine := NewArbitrageEngine(testLogger(), testConfig(), source, &fakeOracle{quotes: marketQuotes()},
			WithRepository(repo), WithPublisher(pub))

		report, err := engine.RunOnce(ctx)
		require.NoError(t, err)
		assert.True(t, report.Complete)
		repo.AssertExpectations(t)
		pub.AssertExpectations(t)
	})
}

func TestArbitrageEngine_Run(t *testing.T) {
	t.Run("zero interval runs once", func(t *testing.T) {
		source := new(MockSource)
		source.On("FetchPairs", mock.Anything).Return(marketPairs(), nil).Once()

		engine := NewArbitrageEngine(testLogger(), testConfig(), source, &fakeOracle{quotes: marketQuotes()})

		var handled int
		err := engine.Run(context.Background(), func(r *model.ScanReport) { handled++ })
		require.NoError(t, err)
		assert.Equal(t, 1, handled)
		source.AssertExpectations(t)
	})

	t.Run("zero interval returns the scan error", func(t *testing.T) {
		source := new(MockSource)
		source.On("FetchPairs", mock.Anything).Return(nil, &model.ParseError{Op: "exchangeInfo", Err: errors.New("unexpected EOF")})

		engine := NewArbitrageEngine(testLogger(), testConfig(), source, &fakeOracle{})

		err := engine.Run(context.Background(), nil)
		var perr *model.ParseError
		assert.ErrorAs(t, err, &perr)
	})

	t.Run("repeats until cancelled", func(t *testing.T) {
		cfg := testConfig()
		cfg.Scan.IntervalMS = 10
		source := new(MockSource)
		source.On("FetchPairs", mock.Anything).Return(marketPairs(), nil)

		engine := NewArbitrageEngine(testLogger(), cfg, source, &fakeOracle{quotes: marketQuotes()})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		var handled int
		err := engine.Run(ctx, func(r *model.ScanReport) {
			handled++
			if handled == 3 {
				cancel()
			}
		})
		require.NoError(t, err)
		assert.Equal(t, 3, handled)
	})
}
