// Package simulator produces demo transactions for exercising a backend.
package simulator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sentinel-labs/fraud-monitor/internal/domain/transaction"
	"github.com/sentinel-labs/fraud-monitor/internal/domain/values"
)

// SuspiciousRatio is the share of generated transactions shaped like fraud
const SuspiciousRatio = 0.2

type place struct {
	country, city string
	lat, lng      float64
}

var (
	places = []place{
		{"USA", "New York", 40.7128, -74.0060},
		{"UK", "London", 51.5074, -0.1278},
		{"Germany", "Berlin", 52.5200, 13.4050},
		{"France", "Paris", 48.8566, 2.3522},
		{"Japan", "Tokyo", 35.6762, 139.6503},
	}
	merchants      = []string{"Amazon", "Walmart", "Target", "Best Buy", "Unknown Merchant"}
	paymentMethods = []string{"credit_card", "debit_card", "digital_wallet"}
	unusualHours   = []int{2, 3, 4, 23, 0, 1}
)

// Generator creates plausible transactions. It is not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator creates a generator; the same seed yields the same sequence
func NewGenerator(seed uint64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

// Next returns a new submission
func (g *Generator) Next() transaction.Submission {
	now := g.now().UTC()
	p := places[g.rng.IntN(len(places))]

	sub := transaction.Submission{
		TransactionID: fmt.Sprintf("TXN_%d_%d", now.Unix(), 1000+g.rng.IntN(9000)),
		UserID:        fmt.Sprintf("USER_%d", 1000+g.rng.IntN(9000)),
		Amount:        decimal.NewFromInt(int64(10 + g.rng.IntN(4991))),
		Merchant:      merchants[g.rng.IntN(len(merchants))],
		Location: transaction.Location{
			Lat:     values.NewCoordinate(p.lat),
			Lng:     values.NewCoordinate(p.lng),
			City:    p.city,
			Country: p.country,
		},
		Hour:          now.Hour(),
		PaymentMethod: paymentMethods[g.rng.IntN(len(paymentMethods))],
	}

	if g.rng.Float64() < SuspiciousRatio {
		sub.Amount = decimal.NewFromInt(int64(2000 + g.rng.IntN(8001)))
		sub.Hour = unusualHours[g.rng.IntN(len(unusualHours))]
		sub.Merchant = "Unknown Merchant"
	}
	return sub
}

// Submitter posts one transaction for analysis
type Submitter interface {
	ProcessTransaction(ctx context.Context, sub transaction.Submission) (transaction.Event, error)
}

// Result summarizes a Run
type Result struct {
	Submitted int
	Failed    int
	Flagged   int
	Blocked   int
}

// Run submits n generated transactions, waiting interval between them.
// Individual failures are logged and counted; only ctx cancellation stops
// the run early.
func Run(ctx context.Context, g *Generator, s Submitter, n int, interval time.Duration, logger *zap.Logger) (Result, error) {
	var res Result
	for i := 0; i < n; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(interval):
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		sub := g.Next()
		decision, err := s.ProcessTransaction(ctx, sub)
		if err != nil {
			res.Failed++
			logger.Warn("submission failed", zap.String("transaction_id", sub.TransactionID), zap.Error(err))
			continue
		}

		res.Submitted++
		switch decision.Action {
		case transaction.ActionFlag:
			res.Flagged++
		case transaction.ActionBlock:
			res.Blocked++
		}
		logger.Info("transaction analysed",
			zap.String("transaction_id", sub.TransactionID),
			zap.String("action", decision.Action.String()),
			zap.Float64("risk_score", decision.RiskScore),
			zap.String("risk_level", transaction.RiskLevel(decision.RiskScore)))
	}
	return res, nil
}
