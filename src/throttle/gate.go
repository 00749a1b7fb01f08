package throttle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"signalrunner/src/model"
)

// BlockReason explains why an emission did not happen.
type BlockReason string

const (
	BlockNone       BlockReason = ""
	BlockThrottled  BlockReason = "throttled"
	BlockDeduped    BlockReason = "deduplicated"
	BlockEmitFailed BlockReason = "emit_failed"
)

// Store is the persistence the gate needs. ThrottleRepository satisfies it.
type Store interface {
	GetState(ctx context.Context, symbol, side string) (*model.ThrottleState, error)
	SaveState(ctx context.Context, state *model.ThrottleState) error
	SetBypassBoth(ctx context.Context, symbol string) error
	FindDedup(ctx context.Context, hash string, now time.Time) (*model.DedupRecord, error)
	CreateDedup(ctx context.Context, record *model.DedupRecord) error
	DeleteExpiredDedup(ctx context.Context, now time.Time) (int64, error)
}

// Gate is the combined throttle/dedup layer in front of every emission.
// MinInterval and DedupTTL are fixed for the whole system, not per symbol.
type Gate struct {
	store       Store
	minInterval time.Duration
	dedupTTL    time.Duration
	locks       *keyedMutex
	now         func() time.Time
}

func NewGate(store Store, minInterval, dedupTTL time.Duration) *Gate {
	return &Gate{
		store:       store,
		minInterval: minInterval,
		dedupTTL:    dedupTTL,
		locks:       newKeyedMutex(),
		now:         time.Now,
	}
}

// Request describes one candidate emission.
type Request struct {
	Symbol  string
	Side    string
	Price   decimal.Decimal
	Profile model.StrategyProfile
}

// Outcome reports what the gate decided.
type Outcome struct {
	Allowed bool
	Reason  BlockReason
}

// ArmBypass resets gating for both sides of a symbol after a configuration
// change: the baseline price and timestamp are cleared and the next signal
// per side passes unconditionally.
func (g *Gate) ArmBypass(ctx context.Context, symbol string) error {
	unlockBuy := g.locks.Lock(symbol + "|" + model.OrderSideBuy)
	defer unlockBuy()
	unlockSell := g.locks.Lock(symbol + "|" + model.OrderSideSell)
	defer unlockSell()

	return g.store.SetBypassBoth(ctx, symbol)
}

// Emit runs the gate sequence for one signal under the per-key lock: content
// dedup, then time gate, then price gate, then the emit callback. The dedup
// lookup comes first so a replay of an already-sent signal always reports
// "deduplicated", even when the throttle window would also suppress it.
// State is written only after the callback succeeds, so a failed send does
// not consume the bypass or move the baseline.
func (g *Gate) Emit(ctx context.Context, req Request, emit func(ctx context.Context) error) (Outcome, error) {
	unlock := g.locks.Lock(req.Symbol + "|" + req.Side)
	defer unlock()

	now := g.now()

	hash := ContentHash(req.Symbol, req.Side, req.Profile, req.Price, now, g.dedupTTL)
	existing, err := g.store.FindDedup(ctx, hash, now)
	if err != nil {
		return Outcome{}, err
	}
	if existing != nil {
		logger.WithFields(map[string]interface{}{
			"symbol": req.Symbol,
			"side":   req.Side,
			"hash":   hash,
		}).Info("emission suppressed as duplicate")
		return Outcome{Allowed: false, Reason: BlockDeduped}, nil
	}

	state, err := g.store.GetState(ctx, req.Symbol, req.Side)
	if err != nil {
		return Outcome{}, err
	}

	if !g.throttleAllows(state, req, now) {
		logger.WithFields(map[string]interface{}{
			"symbol": req.Symbol,
			"side":   req.Side,
			"price":  req.Price,
		}).Debug("emission throttled")
		return Outcome{Allowed: false, Reason: BlockThrottled}, nil
	}

	if err := emit(ctx); err != nil {
		return Outcome{Allowed: false, Reason: BlockEmitFailed}, err
	}

	if state == nil {
		state = &model.ThrottleState{Symbol: req.Symbol, Side: req.Side}
	}
	state.BaselinePrice = req.Price
	state.LastSentAt = now
	state.Bypass = false
	if err := g.store.SaveState(ctx, state); err != nil {
		return Outcome{}, err
	}

	record := &model.DedupRecord{
		Hash:      hash,
		Symbol:    req.Symbol,
		Side:      req.Side,
		ExpiresAt: now.Add(g.dedupTTL),
	}
	if err := g.store.CreateDedup(ctx, record); err != nil {
		return Outcome{}, err
	}

	return Outcome{Allowed: true}, nil
}

// throttleAllows applies the time gate first, then the price gate. A missing
// state row means first-ever signal, always allowed. An armed bypass allows
// exactly one emission.
func (g *Gate) throttleAllows(state *model.ThrottleState, req Request, now time.Time) bool {
	if state == nil {
		return true
	}
	if state.Bypass {
		return true
	}

	if now.Sub(state.LastSentAt) > g.minInterval {
		return true
	}

	if state.BaselinePrice.IsPositive() && req.Profile.MinChangePct.IsPositive() {
		changePct := req.Price.Sub(state.BaselinePrice).Abs().
			Div(state.BaselinePrice).
			Mul(decimal.NewFromInt(100))
		if changePct.GreaterThan(req.Profile.MinChangePct) {
			return true
		}
	}

	return false
}
