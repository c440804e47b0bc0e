package transaction

import (
	"github.com/shopspring/decimal"
)

// Submission is a raw transaction sent to the backend for analysis
type Submission struct {
	TransactionID string          `json:"transaction_id" validate:"required"`
	UserID        string          `json:"user_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Merchant      string          `json:"merchant" validate:"required"`
	Location      Location        `json:"location"`
	Hour          int             `json:"hour" validate:"min=0,max=23"`
	PaymentMethod string          `json:"payment_method" validate:"required"`
}
