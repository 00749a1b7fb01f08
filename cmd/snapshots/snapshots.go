package snapshots

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"

	"signalrunner/src/model"
	"signalrunner/src/repository"
)

// Producer fetches klines per watchlist symbol and writes one indicator
// snapshot per refresh. It is the only writer of market_snapshots.
type Producer struct {
	Log       *logger.Entry
	Config    *Config
	Watchlist *repository.WatchlistRepository
	Snapshots *repository.SnapshotRepository

	exchange goex.API
	now      func() time.Time
}

func NewProducer(watchlist *repository.WatchlistRepository, snapshots *repository.SnapshotRepository) *Producer {
	return &Producer{
		Log:       logger.WithField("cmd", "snapshots"),
		Config:    GetConfig(),
		Watchlist: watchlist,
		Snapshots: snapshots,
		exchange:  newBinanceInstance(),
		now:       time.Now,
	}
}

func newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

// Start runs one refresh over the whole watchlist.
func (p *Producer) Start(ctx context.Context) error {
	entries, err := p.Watchlist.FindActive(ctx)
	if err != nil {
		return err
	}

	var failed int
	for i := range entries {
		if err := p.refreshEntry(ctx, &entries[i]); err != nil {
			p.Log.WithError(err).WithField("Symbol", entries[i].Symbol).Error("snapshot refresh failed")
			failed++
		}
	}

	if failed == len(entries) && failed > 0 {
		return fmt.Errorf("all %d snapshot refreshes failed", failed)
	}
	return nil
}

// Run refreshes on a fixed interval until the context is canceled.
func (p *Producer) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.Config.Interval)
	defer ticker.Stop()

	p.Log.WithField("Interval", p.Config.Interval).Info("snapshot loop started")

	for {
		select {
		case <-ctx.Done():
			p.Log.Info("snapshot loop stopped")
			return nil
		case <-ticker.C:
			if err := p.Start(ctx); err != nil {
				p.Log.WithError(err).Error("snapshot refresh cycle failed")
			}
		}
	}
}

func (p *Producer) refreshEntry(ctx context.Context, entry *model.WatchlistEntry) error {
	profile, err := model.ResolveProfile(entry)
	if err != nil {
		return err
	}

	klines, err := p.fetchKlines(entry.Symbol, profile.Timeframe)
	if err != nil {
		return err
	}
	if len(klines) < p.Config.SMASlowPeriod+1 {
		return fmt.Errorf("only %d klines for %s, need %d", len(klines), entry.Symbol, p.Config.SMASlowPeriod+1)
	}

	snapshot := p.computeSnapshot(entry.Symbol, klines)
	if err := p.Snapshots.Upsert(ctx, snapshot); err != nil {
		return err
	}

	p.Log.WithFields(logger.Fields{
		"Symbol":     entry.Symbol,
		"Price":      snapshot.Price,
		"RSI":        snapshot.RSI,
		"CapturedAt": snapshot.CapturedAt,
	}).Info("Snapshot inserted or updated in database")

	return nil
}

func (p *Producer) fetchKlines(symbol, timeframe string) ([]goex.Kline, error) {
	base := model.BaseAssetOf(symbol)
	quote := strings.TrimPrefix(strings.ToUpper(symbol), base)
	if quote == "" {
		return nil, fmt.Errorf("cannot split symbol %q into base and quote", symbol)
	}

	pair := goex.NewCurrencyPair(goex.Currency{Symbol: base}, goex.Currency{Symbol: quote})

	klines, err := p.exchange.GetKlineRecords(pair, klinePeriod(timeframe), p.Config.Limit)
	if err != nil {
		return nil, err
	}
	return klines, nil
}

func klinePeriod(timeframe string) goex.KlinePeriod {
	switch timeframe {
	case "1m":
		return goex.KLINE_PERIOD_1MIN
	case "15m":
		return goex.KLINE_PERIOD_15MIN
	case "1h":
		return goex.KLINE_PERIOD_1H
	default:
		return goex.KLINE_PERIOD_1H
	}
}

// computeSnapshot derives all indicators from one kline window. Klines are
// oldest first; the last one is the current candle.
func (p *Producer) computeSnapshot(symbol string, klines []goex.Kline) *model.MarketSnapshot {
	closes := make([]decimal.Decimal, len(klines))
	volumes := make([]decimal.Decimal, len(klines))
	highs := make([]decimal.Decimal, len(klines))
	for i, k := range klines {
		closes[i] = decimal.NewFromFloat(k.Close)
		volumes[i] = decimal.NewFromFloat(k.Vol)
		highs[i] = decimal.NewFromFloat(k.High)
	}

	last := klines[len(klines)-1]

	return &model.MarketSnapshot{
		Symbol:      symbol,
		Price:       closes[len(closes)-1],
		RSI:         relativeStrength(closes, p.Config.RSIPeriod),
		SMAFast:     simpleMovingAverage(closes, p.Config.SMAFastPeriod),
		SMASlow:     simpleMovingAverage(closes, p.Config.SMASlowPeriod),
		VolumeRatio: volumeRatio(volumes, p.Config.VolumeWindow),
		TargetPrice: highestHigh(highs, p.Config.BreakoutWindow),
		CapturedAt:  time.Unix(last.Timestamp, 0).UTC(),
	}
}

func simpleMovingAverage(values []decimal.Decimal, period int) decimal.Decimal {
	if period <= 0 || len(values) < period {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values[len(values)-period:] {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

// relativeStrength is the classic RSI over simple averages of gains and
// losses. All losses yields 0, all gains yields 100.
func relativeStrength(closes []decimal.Decimal, period int) decimal.Decimal {
	if period <= 0 || len(closes) < period+1 {
		return decimal.Zero
	}

	window := closes[len(closes)-period-1:]
	gains, losses := decimal.Zero, decimal.Zero
	for i := 1; i < len(window); i++ {
		change := window[i].Sub(window[i-1])
		if change.IsPositive() {
			gains = gains.Add(change)
		} else {
			losses = losses.Add(change.Neg())
		}
	}

	total := gains.Add(losses)
	if total.IsZero() {
		return decimal.NewFromInt(50)
	}
	return gains.Div(total).Mul(decimal.NewFromInt(100))
}

// volumeRatio compares the current candle's volume to the average of the
// preceding window.
func volumeRatio(volumes []decimal.Decimal, window int) decimal.Decimal {
	if window <= 0 || len(volumes) < window+1 {
		return decimal.Zero
	}
	avg := simpleMovingAverage(volumes[:len(volumes)-1], window)
	if !avg.IsPositive() {
		return decimal.Zero
	}
	return volumes[len(volumes)-1].Div(avg)
}

// highestHigh over the lookback window is the breakout reference level.
func highestHigh(highs []decimal.Decimal, window int) decimal.Decimal {
	if window <= 0 || len(highs) == 0 {
		return decimal.Zero
	}
	if window > len(highs) {
		window = len(highs)
	}
	top := decimal.Zero
	for _, h := range highs[len(highs)-window:] {
		if h.GreaterThan(top) {
			top = h
		}
	}
	return top
}
