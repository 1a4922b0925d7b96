package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prajwal01532/RideHubEsewa/configuration"
	"github.com/prajwal01532/RideHubEsewa/models"
	"github.com/prajwal01532/RideHubEsewa/utils"
)

// amountTolerance absorbs float representation noise when comparing currency
// amounts from different sources.
const amountTolerance = 0.01

const chargeCurrency = "usd"

// EsewaVerifier is the gateway's transaction status API.
type EsewaVerifier interface {
	CheckStatus(ctx context.Context, transactionUUID, totalAmount string) (*utils.EsewaStatus, error)
}

// PaymentService drives every booking and payment state transition. It is the
// only writer of Payment.Status and of Booking.PaymentStatus following
// payment events. All transitions are conditional updates guarded by the
// previous status, so concurrent writers cannot double-apply them.
type PaymentService struct {
	DB      *gorm.DB
	Esewa   configuration.EsewaConfig
	Gateway EsewaVerifier
	Charger CardCharger
}

func NewPaymentService(db *gorm.DB, cfg configuration.AppConfig, charger CardCharger) *PaymentService {
	return &PaymentService{
		DB:      db,
		Esewa:   cfg.Esewa,
		Gateway: utils.NewEsewaClient(cfg.Esewa),
		Charger: charger,
	}
}

// InitiationResult is the method-specific outcome of starting a payment.
type InitiationResult struct {
	PaymentID     string            `json:"payment_id"`
	Status        string            `json:"status"`
	TransactionID string            `json:"transaction_id,omitempty"`
	RedirectURL   string            `json:"url,omitempty"`
	Params        map[string]string `json:"params,omitempty"`
}

// InitiatePayment validates the request and branches on the payment method.
// Validation failures happen before any write, so a rejected initiation
// leaves no ledger entry behind.
func (s *PaymentService) InitiatePayment(ctx context.Context, userID int, bookingID uint, amount float64, method string, card *CardDetails) (*InitiationResult, error) {
	var booking models.Booking
	if err := s.DB.First(&booking, bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if booking.UserID != userID {
		return nil, ErrNotAuthorized
	}
	if math.Abs(booking.TotalAmount-amount) > amountTolerance {
		return nil, ErrAmountMismatch
	}
	switch booking.Status {
	case models.BookingCancelled:
		return nil, ErrBookingNotPayable
	case models.BookingConfirmed, models.BookingCompleted:
		return nil, ErrAlreadyProcessed
	}

	switch method {
	case models.PaymentMethodCOD:
		return s.initiateCOD(&booking)
	case models.PaymentMethodEsewa:
		return s.initiateEsewa(&booking)
	case models.PaymentMethodCard:
		return s.initiateCard(ctx, &booking, card)
	default:
		return nil, ErrInvalidPaymentMethod
	}
}

// initiateCOD records a pending cash-on-delivery attempt. The booking stays
// pending until fulfillment confirms the cash was collected, which happens
// outside this flow.
func (s *PaymentService) initiateCOD(booking *models.Booking) (*InitiationResult, error) {
	payment := models.Payment{
		PaymentID:     uuid.NewString(),
		BookingID:     booking.BookingID,
		UserID:        booking.UserID,
		Amount:        booking.TotalAmount,
		PaymentMethod: models.PaymentMethodCOD,
		Status:        models.PaymentPending,
		Details: models.DetailBag(map[string]any{
			"initiated_at":  time.Now().UTC(),
			"delivery_note": "Cash to be collected on delivery",
		}),
	}
	if err := s.DB.Create(&payment).Error; err != nil {
		return nil, err
	}
	return &InitiationResult{PaymentID: payment.PaymentID, Status: payment.Status}, nil
}

// initiateEsewa creates the pending ledger entry keyed by a fresh transaction
// uuid and returns the signed redirect target. The reconcile step later finds
// the entry by the same uuid, independent of any session state from here.
func (s *PaymentService) initiateEsewa(booking *models.Booking) (*InitiationResult, error) {
	transactionUUID := uuid.NewString()
	amountStr := formatAmount(booking.TotalAmount)

	payment := models.Payment{
		PaymentID:     uuid.NewString(),
		BookingID:     booking.BookingID,
		UserID:        booking.UserID,
		Amount:        booking.TotalAmount,
		PaymentMethod: models.PaymentMethodEsewa,
		Status:        models.PaymentPending,
		TransactionID: transactionUUID,
		Details: models.DetailBag(map[string]any{
			"initiated_at": time.Now().UTC(),
		}),
	}
	if err := s.DB.Create(&payment).Error; err != nil {
		return nil, err
	}

	// Mark the booking as awaiting payment; only valid while it is pending.
	if err := s.DB.Model(&models.Booking{}).
		Where("booking_id = ? AND status = ?", booking.BookingID, models.BookingPending).
		Update("payment_status", models.BookingPaymentPending).Error; err != nil {
		return nil, err
	}

	return &InitiationResult{
		PaymentID:     payment.PaymentID,
		Status:        payment.Status,
		TransactionID: transactionUUID,
		RedirectURL:   utils.PaymentRedirectURL(s.Esewa, amountStr, transactionUUID),
		Params:        utils.PaymentParams(s.Esewa, amountStr, transactionUUID),
	}, nil
}

// initiateCard validates the card, records the attempt, and submits a single
// charge. A decline is terminal for the attempt; a transport failure leaves
// the entry PENDING because the outcome is unknown and a retry could double
// charge.
func (s *PaymentService) initiateCard(ctx context.Context, booking *models.Booking, card *CardDetails) (*InitiationResult, error) {
	if err := ValidateCard(card, time.Now()); err != nil {
		return nil, err
	}

	payment := models.Payment{
		PaymentID:     uuid.NewString(),
		BookingID:     booking.BookingID,
		UserID:        booking.UserID,
		Amount:        booking.TotalAmount,
		PaymentMethod: models.PaymentMethodCard,
		Status:        models.PaymentPending,
		Details: models.DetailBag(map[string]any{
			"initiated_at": time.Now().UTC(),
			"last4":        card.Last4(),
			"card_type":    CardNetwork(card.CardNumber),
		}),
	}
	if err := s.DB.Create(&payment).Error; err != nil {
		return nil, err
	}

	result, err := s.Charger.Charge(ctx, booking.TotalAmount, chargeCurrency, card)
	if err != nil {
		if errors.Is(err, ErrCardDeclined) {
			if _, failErr := s.markPaymentFailed(payment.PaymentID, err.Error()); failErr != nil {
				return nil, failErr
			}
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	if err := s.completePayment(&payment, result.TransactionID, map[string]any{
		"transaction_id": result.TransactionID,
	}); err != nil {
		if errors.Is(err, ErrBookingNotPayable) {
			// The booking left the pending state while the charge was in
			// flight; the attempt cannot confirm it anymore.
			if _, failErr := s.markPaymentFailed(payment.PaymentID, "booking no longer payable"); failErr != nil {
				return nil, failErr
			}
		}
		return nil, err
	}

	return &InitiationResult{
		PaymentID:     payment.PaymentID,
		Status:        models.PaymentCompleted,
		TransactionID: result.TransactionID,
	}, nil
}

// ReconcileEsewaSuccess maps the gateway's success redirect onto persisted
// state. Every check must pass before anything moves: signature first, then
// the server-to-server status query, then the amount and transaction id
// cross-checks against the stored entry. Replays short-circuit on the
// already-COMPLETED ledger entry.
func (s *PaymentService) ReconcileEsewaSuccess(ctx context.Context, encodedData string) (*models.Booking, error) {
	cb, err := utils.DecodeCallback(encodedData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !utils.VerifyCallbackSignature(s.Esewa, cb) {
		return nil, ErrInvalidSignature
	}

	var payment models.Payment
	if err := s.DB.First(&payment, "transaction_id = ?", cb.TransactionUUID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	var booking models.Booking
	if err := s.DB.First(&booking, payment.BookingID).Error; err != nil {
		return nil, err
	}

	if payment.Status == models.PaymentCompleted {
		return &booking, ErrAlreadyProcessed
	}
	if payment.Status == models.PaymentFailed {
		return nil, ErrVerificationFailed
	}
	if booking.Status == models.BookingCancelled {
		// A late callback must not resurrect a cancelled booking.
		if _, err := s.markPaymentFailed(payment.PaymentID, "booking was cancelled before confirmation"); err != nil {
			return nil, err
		}
		return nil, ErrVerificationFailed
	}

	status, err := s.Gateway.CheckStatus(ctx, cb.TransactionUUID, cb.TotalAmount)
	if err != nil {
		// Transient: the entry stays PENDING so verification can run again.
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	callbackAmount, err := parseAmount(cb.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: bad total_amount %q", ErrInvalidInput, cb.TotalAmount)
	}
	if status.Status != utils.StatusComplete ||
		status.TransactionUUID != cb.TransactionUUID ||
		math.Abs(status.TotalAmount-payment.Amount) > amountTolerance ||
		math.Abs(callbackAmount-payment.Amount) > amountTolerance {
		if _, err := s.markPaymentFailed(payment.PaymentID, fmt.Sprintf("gateway status %s", status.Status)); err != nil {
			return nil, err
		}
		return nil, ErrVerificationFailed
	}

	if err := s.completePayment(&payment, status.RefID, map[string]any{
		"ref_id":           status.RefID,
		"transaction_code": cb.TransactionCode,
	}); err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			s.DB.First(&booking, payment.BookingID)
			return &booking, ErrAlreadyProcessed
		}
		if errors.Is(err, ErrBookingNotPayable) {
			// The booking was cancelled after the check above, while the
			// gateway was being queried. Same outcome as the earlier guard.
			if _, failErr := s.markPaymentFailed(payment.PaymentID, "booking was cancelled before confirmation"); failErr != nil {
				return nil, failErr
			}
			return nil, ErrVerificationFailed
		}
		return nil, err
	}

	if err := s.DB.First(&booking, payment.BookingID).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// RecordEsewaFailure handles the gateway's failure redirect: the user
// cancelled or the gateway reported failure. The booking's payment status
// goes failed but its lifecycle status is untouched, so the renter can retry
// or cancel. The endpoint is unauthenticated, so the transition only applies
// while the ledger entry is still PENDING; a hit after completion is
// rejected and touches nothing.
func (s *PaymentService) RecordEsewaFailure(transactionUUID string) (uint, error) {
	var payment models.Payment
	if err := s.DB.First(&payment, "transaction_id = ?", transactionUUID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrPaymentNotFound
		}
		return 0, err
	}
	moved, err := s.markPaymentFailed(payment.PaymentID, "gateway reported failure or user cancelled")
	if err != nil {
		return 0, err
	}
	if !moved {
		if err := s.DB.First(&payment, "payment_id = ?", payment.PaymentID).Error; err != nil {
			return 0, err
		}
		if payment.Status == models.PaymentCompleted {
			return payment.BookingID, ErrAlreadyProcessed
		}
		// Already FAILED: a replayed failure leg, nothing left to do.
		return payment.BookingID, nil
	}
	if err := s.DB.Model(&models.Booking{}).
		Where("booking_id = ?", payment.BookingID).
		Update("payment_status", models.BookingPaymentFailed).Error; err != nil {
		return 0, err
	}
	return payment.BookingID, nil
}

// PaymentView is the owner-scoped status response. Card details never appear
// here because raw card data is never persisted in the first place.
type PaymentView struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	Amount        float64         `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Details       map[string]any  `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Booking       *models.Booking `json:"booking,omitempty"`
}

// PaymentStatus returns the ledger status plus the linked booking, scoped to
// the owning user.
func (s *PaymentService) PaymentStatus(paymentID string, userID int) (*PaymentView, error) {
	var payment models.Payment
	if err := s.DB.First(&payment, "payment_id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if payment.UserID != userID {
		return nil, ErrNotAuthorized
	}
	var booking models.Booking
	if err := s.DB.First(&booking, payment.BookingID).Error; err != nil {
		return nil, err
	}
	return &PaymentView{
		ID:            payment.PaymentID,
		Status:        payment.Status,
		Amount:        payment.Amount,
		PaymentMethod: payment.PaymentMethod,
		TransactionID: payment.TransactionID,
		Details:       payment.DetailMap(),
		CreatedAt:     payment.CreatedAt,
		Booking:       &booking,
	}, nil
}

// completePayment flips the ledger entry PENDING -> COMPLETED and the booking
// pending -> confirmed, atomically. Both updates are guarded by the previous
// status; zero affected rows on the ledger flip means a concurrent writer
// already won, zero on the booking flip means the booking left the pending
// state and the whole completion rolls back.
func (s *PaymentService) completePayment(payment *models.Payment, reference string, extraDetails map[string]any) error {
	bag := payment.DetailMap()
	for key, value := range extraDetails {
		bag[key] = value
	}
	bag["completed_at"] = time.Now().UTC()

	return s.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Payment{}).
			Where("payment_id = ? AND status = ?", payment.PaymentID, models.PaymentPending).
			Updates(map[string]any{
				"status":         models.PaymentCompleted,
				"transaction_id": firstNonEmpty(payment.TransactionID, reference),
				"details":        models.DetailBag(bag),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyProcessed
		}

		result = tx.Model(&models.Booking{}).
			Where("booking_id = ? AND status = ?", payment.BookingID, models.BookingPending).
			Updates(map[string]any{
				"status":            models.BookingConfirmed,
				"payment_status":    models.BookingPaymentCompleted,
				"payment_reference": reference,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrBookingNotPayable
		}
		return nil
	})
}

// markPaymentFailed moves a pending entry to FAILED with the reason in the
// detail bag. Terminal entries are left alone; the returned bool reports
// whether the entry actually moved.
func (s *PaymentService) markPaymentFailed(paymentID, reason string) (bool, error) {
	var payment models.Payment
	if err := s.DB.First(&payment, "payment_id = ?", paymentID).Error; err != nil {
		return false, err
	}
	bag := payment.DetailMap()
	bag["error"] = reason
	bag["failed_at"] = time.Now().UTC()

	result := s.DB.Model(&models.Payment{}).
		Where("payment_id = ? AND status = ?", paymentID, models.PaymentPending).
		Updates(map[string]any{
			"status":  models.PaymentFailed,
			"details": models.DetailBag(bag),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

// parseAmount reads a gateway amount string, tolerating the thousands commas
// eSewa formats into some payloads.
func parseAmount(raw string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
