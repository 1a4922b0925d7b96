package controllers

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prajwal01532/RideHubEsewa/configuration"
	"github.com/prajwal01532/RideHubEsewa/models"
	"github.com/prajwal01532/RideHubEsewa/services"
)

// PaymentController wires the payment orchestrator into the HTTP layer.
type PaymentController struct {
	Service *services.PaymentService
	Config  configuration.AppConfig
}

func NewPaymentController(service *services.PaymentService, cfg configuration.AppConfig) *PaymentController {
	return &PaymentController{Service: service, Config: cfg}
}

type esewaInitiateRequest struct {
	BookingID uint    `json:"bookingId" binding:"required"`
	Amount    float64 `json:"amount" binding:"required,gt=0"`
}

// InitiateEsewaPayment starts a redirect-gateway payment for a booking and
// returns the signed URL the browser should be sent to
func (pc *PaymentController) InitiateEsewaPayment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req esewaInitiateRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	result, err := pc.Service.InitiatePayment(c.Request.Context(), userID, req.BookingID, req.Amount, models.PaymentMethodEsewa, nil)
	if err != nil {
		status, message := paymentErrorResponse(err)
		c.JSON(status, gin.H{"success": false, "error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"url":            result.RedirectURL,
		"payment_id":     result.PaymentID,
		"transaction_id": result.TransactionID,
		"params":         result.Params,
	})
}

type initiateRequest struct {
	BookingID     uint                  `json:"bookingId"`
	OrderID       uint                  `json:"orderId"`
	Amount        float64               `json:"amount" binding:"required,gt=0"`
	PaymentMethod string                `json:"paymentMethod" binding:"required"`
	CardDetails   *services.CardDetails `json:"cardDetails,omitempty"`
}

// InitiatePayment is the method-selecting variant: COD, ESEWA or CARD
func (pc *PaymentController) InitiatePayment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req initiateRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	bookingID := req.BookingID
	if bookingID == 0 {
		bookingID = req.OrderID
	}

	result, err := pc.Service.InitiatePayment(c.Request.Context(), userID, bookingID, req.Amount, req.PaymentMethod, req.CardDetails)
	if err != nil {
		status, message := paymentErrorResponse(err)
		c.JSON(status, gin.H{"success": false, "error": message})
		return
	}

	// A card payment completes synchronously; send the receipt right away.
	if req.PaymentMethod == models.PaymentMethodCard && result.Status == models.PaymentCompleted {
		pc.sendReceipt(bookingID)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "payment": result})
}

// PaymentSuccess is the gateway's success redirect. The browser lands here
// with a base64 payload; after reconciliation it is forwarded to the frontend
// result page. Replayed callbacks land on the success page too, but state is
// only flipped once.
func (pc *PaymentController) PaymentSuccess(c *gin.Context) {
	encoded := c.Query("data")
	if encoded == "" {
		pc.redirectFailure(c, "invalid_callback")
		return
	}

	booking, err := pc.Service.ReconcileEsewaSuccess(c.Request.Context(), encoded)
	if err != nil && !errors.Is(err, services.ErrAlreadyProcessed) {
		log.Println("eSewa reconciliation failed:", err)
		pc.redirectFailure(c, failureCode(err))
		return
	}

	if err == nil {
		// First confirmation of this payment: send the receipt.
		pc.sendReceipt(booking.BookingID)
	}

	c.Redirect(http.StatusSeeOther,
		fmt.Sprintf("%s/payment/success?bookingId=%d", pc.Config.FrontendURL, booking.BookingID))
}

// PaymentFailure is the gateway's failure redirect: the user cancelled or the
// gateway gave up. The ledger entry goes FAILED, the booking stays pending so
// the renter can retry or cancel.
func (pc *PaymentController) PaymentFailure(c *gin.Context) {
	transactionUUID := c.Query("transaction_uuid")
	if transactionUUID == "" {
		transactionUUID = c.Query("oid")
	}

	if transactionUUID != "" {
		bookingID, err := pc.Service.RecordEsewaFailure(transactionUUID)
		if errors.Is(err, services.ErrAlreadyProcessed) {
			// The payment already completed; a stale or forged failure hit
			// must not suggest otherwise.
			c.Redirect(http.StatusSeeOther,
				fmt.Sprintf("%s/payment/success?bookingId=%d", pc.Config.FrontendURL, bookingID))
			return
		}
		if err != nil {
			log.Println("recording eSewa failure:", err)
		}
	}

	pc.redirectFailure(c, "payment_failed")
}

// GetPaymentStatus returns one ledger entry with its booking, owner only
func (pc *PaymentController) GetPaymentStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	view, err := pc.Service.PaymentStatus(c.Param("id"), userID)
	if err != nil {
		status, message := paymentErrorResponse(err)
		c.JSON(status, gin.H{"success": false, "error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "payment": view})
}

func (pc *PaymentController) redirectFailure(c *gin.Context, code string) {
	c.Redirect(http.StatusSeeOther,
		fmt.Sprintf("%s/payment/failure?error=%s", pc.Config.FrontendURL, code))
}

// sendReceipt emails the PDF receipt for a paid booking. Best effort: the
// payment has already been confirmed, a mail problem must not undo that or
// fail the request.
func (pc *PaymentController) sendReceipt(bookingID uint) {
	var booking models.Booking
	if err := pc.Service.DB.First(&booking, bookingID).Error; err != nil {
		log.Println("receipt: fetching booking:", err)
		return
	}
	var payment models.Payment
	if err := pc.Service.DB.Where("booking_id = ? AND status = ?", bookingID, models.PaymentCompleted).
		First(&payment).Error; err != nil {
		log.Println("receipt: fetching payment:", err)
		return
	}
	var user models.User
	if err := pc.Service.DB.First(&user, booking.UserID).Error; err != nil {
		log.Println("receipt: fetching user:", err)
		return
	}

	pdf, err := GenerateBookingReceipt(booking, payment, user)
	if err != nil {
		log.Println("receipt: generating PDF:", err)
		return
	}
	if err := SendReceiptEmail("Payment successful for your booking", user.Email, "receipt.pdf", pdf); err != nil {
		log.Println("receipt: sending email:", err)
	}
}

// failureCode maps a reconciliation error to the code appended to the
// frontend failure redirect.
func failureCode(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, services.ErrPaymentNotFound), errors.Is(err, services.ErrBookingNotFound):
		return "booking_not_found"
	case errors.Is(err, services.ErrGatewayUnavailable):
		return "verification_unavailable"
	case errors.Is(err, services.ErrVerificationFailed):
		return "verification_failed"
	default:
		return "server_error"
	}
}

// paymentErrorResponse maps the service error taxonomy onto HTTP statuses.
// Transient gateway trouble (503) is kept apart from a definitive decline
// (402) so billing support can tell the two cases apart.
func paymentErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrBookingNotFound), errors.Is(err, services.ErrPaymentNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrNotAuthorized):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, services.ErrAmountMismatch),
		errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrInvalidDateRange),
		errors.Is(err, services.ErrInvalidPaymentMethod),
		errors.Is(err, services.ErrBookingNotPayable):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrCardDeclined):
		return http.StatusPaymentRequired, err.Error()
	case errors.Is(err, services.ErrAlreadyProcessed):
		return http.StatusConflict, err.Error()
	case errors.Is(err, services.ErrInvalidSignature), errors.Is(err, services.ErrVerificationFailed):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, services.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
