package throttle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"signalrunner/src/model"
)

// ContentHash derives the dedup key for one logical signal. Two emissions
// hash equal when they share symbol, side, profile, timeframe, a price inside
// the same min-change band and a timestamp inside the same TTL window.
func ContentHash(
	symbol, side string,
	profile model.StrategyProfile,
	price decimal.Decimal,
	at time.Time,
	ttl time.Duration,
) string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%d",
		symbol,
		side,
		profile.Key,
		profile.Timeframe,
		priceBucket(price, profile.MinChangePct),
		at.UTC().Truncate(ttl).Unix(),
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// priceBucket quantizes the price into geometric bands of minChangePct
// percent, so prices that would not clear the price gate anyway collapse to
// one bucket. Float precision is fine here, the result is only a hash input.
func priceBucket(price, minChangePct decimal.Decimal) string {
	if !minChangePct.IsPositive() || !price.IsPositive() {
		return price.String()
	}
	p, _ := price.Float64()
	step, _ := minChangePct.Float64()
	band := math.Log(p) / math.Log(1+step/100)
	return strconv.FormatInt(int64(math.Floor(band)), 10)
}
