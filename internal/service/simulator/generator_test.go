package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sentinel-labs/fraud-monitor/internal/domain/transaction"
)

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) ProcessTransaction(ctx context.Context, sub transaction.Submission) (transaction.Event, error) {
	args := m.Called(ctx, sub)
	return args.Get(0).(transaction.Event), args.Error(1)
}

func TestGenerator_ProducesValidSubmissions(t *testing.T) {
	g := NewGenerator(42)
	validate := validator.New()

	suspicious := 0
	for i := 0; i < 500; i++ {
		sub := g.Next()
		require.NoError(t, validate.Struct(sub))

		_, _, ok := sub.Location.Point()
		assert.True(t, ok)
		assert.True(t, sub.Amount.IsPositive())
		if sub.Merchant == "Unknown Merchant" && sub.Amount.IntPart() >= 2000 {
			suspicious++
		}
	}
	assert.Greater(t, suspicious, 50)
}

func TestGenerator_Deterministic(t *testing.T) {
	fixed := func() time.Time { return time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC) }
	a, b := NewGenerator(7), NewGenerator(7)
	a.now, b.now = fixed, fixed

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestRun(t *testing.T) {
	s := &mockSubmitter{}
	s.On("ProcessTransaction", mock.Anything, mock.Anything).
		Return(transaction.Event{Action: transaction.ActionBlock, RiskScore: 0.9}, nil).Once()
	s.On("ProcessTransaction", mock.Anything, mock.Anything).
		Return(transaction.Event{}, errors.New("backend down")).Once()
	s.On("ProcessTransaction", mock.Anything, mock.Anything).
		Return(transaction.Event{Action: transaction.ActionFlag, RiskScore: 0.5}, nil).Once()

	res, err := Run(context.Background(), NewGenerator(1), s, 3, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, Result{Submitted: 2, Failed: 1, Flagged: 1, Blocked: 1}, res)
	s.AssertExpectations(t)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, NewGenerator(1), &mockSubmitter{}, 5, time.Millisecond, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Submitted)
}
