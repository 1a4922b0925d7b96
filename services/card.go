package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/paymentmethod"
)

// CardDetails carries the raw card fields for one charge attempt. They live
// in memory only; nothing here is ever written to the database.
type CardDetails struct {
	CardNumber  string `json:"cardNumber"`
	ExpiryMonth int    `json:"expiryMonth"`
	ExpiryYear  int    `json:"expiryYear"`
	CVV         string `json:"cvv"`
}

// Last4 is the only part of the number that may be persisted.
func (c CardDetails) Last4() string {
	if len(c.CardNumber) < 4 {
		return c.CardNumber
	}
	return c.CardNumber[len(c.CardNumber)-4:]
}

var cvvPattern = regexp.MustCompile(`^[0-9]{3,4}$`)

// ValidateCard checks the structural rules before anything touches the card
// network: number present, expiry not in the past, CVV 3 to 4 digits.
func ValidateCard(card *CardDetails, now time.Time) error {
	if card == nil || card.CardNumber == "" {
		return fmt.Errorf("%w: card number is required", ErrInvalidInput)
	}
	if card.ExpiryMonth < 1 || card.ExpiryMonth > 12 {
		return fmt.Errorf("%w: invalid expiry month", ErrInvalidInput)
	}
	// Last instant of the expiry month.
	expiry := time.Date(card.ExpiryYear, time.Month(card.ExpiryMonth), 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 1, 0).Add(-time.Second)
	if expiry.Before(now) {
		return fmt.Errorf("%w: card has expired", ErrInvalidInput)
	}
	if !cvvPattern.MatchString(card.CVV) {
		return fmt.Errorf("%w: invalid CVV", ErrInvalidInput)
	}
	return nil
}

// CardNetwork detects the card network from the leading digits.
func CardNetwork(cardNumber string) string {
	switch {
	case strings.HasPrefix(cardNumber, "4"):
		return "visa"
	case len(cardNumber) >= 2 && cardNumber[0] == '5' && cardNumber[1] >= '1' && cardNumber[1] <= '5':
		return "mastercard"
	case strings.HasPrefix(cardNumber, "34") || strings.HasPrefix(cardNumber, "37"):
		return "amex"
	default:
		return "unknown"
	}
}

// ChargeResult is the network's reference for a successful charge.
type ChargeResult struct {
	TransactionID string
}

// CardCharger submits a single charge to the card network. Implementations
// return an error wrapping ErrCardDeclined for a definitive decline; any
// other error means the network could not be reached and the attempt's
// outcome is unknown. Charges are never retried automatically.
type CardCharger interface {
	Charge(ctx context.Context, amount float64, currency string, card *CardDetails) (*ChargeResult, error)
}

// StripeCharger charges cards through Stripe payment intents.
type StripeCharger struct{}

// NewStripeCharger configures the Stripe client with the secret key.
func NewStripeCharger(secretKey string) *StripeCharger {
	stripe.Key = secretKey
	return &StripeCharger{}
}

func (s *StripeCharger) Charge(ctx context.Context, amount float64, currency string, card *CardDetails) (*ChargeResult, error) {
	method, err := paymentmethod.New(&stripe.PaymentMethodParams{
		Params: stripe.Params{Context: ctx},
		Type:   stripe.String("card"),
		Card: &stripe.PaymentMethodCardParams{
			Number:   stripe.String(card.CardNumber),
			ExpMonth: stripe.Int64(int64(card.ExpiryMonth)),
			ExpYear:  stripe.Int64(int64(card.ExpiryYear)),
			CVC:      stripe.String(card.CVV),
		},
	})
	if err != nil {
		return nil, classifyStripeError(err)
	}

	intent, err := paymentintent.New(&stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(int64(math.Round(amount * 100))),
		Currency:      stripe.String(currency),
		PaymentMethod: stripe.String(method.ID),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	})
	if err != nil {
		return nil, classifyStripeError(err)
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, fmt.Errorf("%w: intent status %s", ErrCardDeclined, intent.Status)
	}
	return &ChargeResult{TransactionID: intent.ID}, nil
}

// classifyStripeError separates a definitive card decline from a transport
// failure, which callers must treat as the gateway being unreachable.
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
		return fmt.Errorf("%w: %s", ErrCardDeclined, stripeErr.Msg)
	}
	return err
}
