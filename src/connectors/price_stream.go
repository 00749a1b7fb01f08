package connectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// PriceUpdate is one ticker tick from the stream.
type PriceUpdate struct {
	Symbol string
	Price  decimal.Decimal
	At     time.Time
}

// PriceStream consumes the exchange miniTicker websocket feed and pushes
// per-symbol price updates to a callback. It keeps the latest snapshot price
// fresh between kline refreshes; losing the stream degrades to stale data,
// which the admission pipeline catches.
type PriceStream struct {
	wsURL    string
	symbols  []string
	onUpdate func(PriceUpdate)
}

func NewPriceStream(wsURL string, symbols []string, onUpdate func(PriceUpdate)) *PriceStream {
	return &PriceStream{wsURL: wsURL, symbols: symbols, onUpdate: onUpdate}
}

// Run connects and consumes until the context is canceled, reconnecting
// with a fixed pause after any failure.
func (s *PriceStream) Run(ctx context.Context) {
	const reconnectPause = 5 * time.Second

	for {
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				logger.Info("price stream stopped")
				return
			}
			logger.WithError(err).Warn("price stream disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			logger.Info("price stream stopped")
			return
		case <-time.After(reconnectPause):
		}
	}
}

func (s *PriceStream) consume(ctx context.Context) error {
	streams := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		streams = append(streams, strings.ToLower(sym)+"@miniTicker")
	}
	endpoint := fmt.Sprintf("%s/stream?streams=%s", s.wsURL, strings.Join(streams, "/"))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to dial price stream: %w", err)
	}
	defer conn.Close()

	logger.WithField("streams", len(streams)).Info("price stream connected")

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var frame struct {
			Data struct {
				Symbol    string `json:"s"`
				Close     string `json:"c"`
				EventTime int64  `json:"E"`
			} `json:"data"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		if frame.Data.Symbol == "" {
			continue
		}

		price, err := decimal.NewFromString(frame.Data.Close)
		if err != nil {
			logger.WithField("raw", frame.Data.Close).Warn("unparseable ticker price, dropping tick")
			continue
		}

		s.onUpdate(PriceUpdate{
			Symbol: frame.Data.Symbol,
			Price:  price,
			At:     time.UnixMilli(frame.Data.EventTime).UTC(),
		})
	}
}
