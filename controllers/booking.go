package controllers

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/prajwal01532/RideHubEsewa/configuration"
	"github.com/prajwal01532/RideHubEsewa/models"
	"github.com/prajwal01532/RideHubEsewa/services"
)

type bookingRequest struct {
	VehicleID      uint      `json:"vehicleId" binding:"required"`
	VehicleType    string    `json:"vehicleType" binding:"required,oneof=car bike"`
	StartDate      time.Time `json:"startDate" binding:"required"`
	EndDate        time.Time `json:"endDate" binding:"required"`
	RequiresDriver bool      `json:"requiresDriver"`
	Message        string    `json:"message"`
	TotalAmount    float64   `json:"totalAmount"`
}

// CreateBooking creates a pending booking. The total is computed here from
// the vehicle's day rate and fixed for the life of the booking; a client-sent
// total only gets cross-checked, never stored as-is.
func CreateBooking(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req bookingRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vehicle, err := models.FindVehicle(configuration.DB, req.VehicleType, req.VehicleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, models.ErrUnknownVehicleType) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch vehicle"})
		return
	}
	if !vehicle.Available {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Vehicle is not available"})
		return
	}

	days, err := services.RentalDays(req.StartDate, req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "End date must be after start date"})
		return
	}
	total, err := services.ComputeTotal(vehicle.PricePerDay, days, req.RequiresDriver, vehicle.DriverCharge)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not price the rental"})
		return
	}
	if req.TotalAmount != 0 && math.Abs(req.TotalAmount-total) > 0.01 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Amount mismatch",
			"expected": total,
			"received": req.TotalAmount,
		})
		return
	}

	booking := models.Booking{
		UserID:         userID,
		VehicleID:      req.VehicleID,
		VehicleType:    req.VehicleType,
		VehicleName:    vehicle.Name,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		RequiresDriver: req.RequiresDriver,
		Message:        req.Message,
		TotalAmount:    total,
		PaymentStatus:  models.BookingPaymentPending,
		Status:         models.BookingPending,
	}
	if err := configuration.DB.Create(&booking).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create booking"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"Status":  "Success",
		"Message": "Booking created successfully",
		"data":    booking,
	})
}

// GetBookings lists the caller's bookings, newest first
func GetBookings(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var bookings []models.Booking
	if err := configuration.DB.Where("user_id = ?", userID).Order("created_at desc").Find(&bookings).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bookings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"Status": "Success", "data": bookings})
}

// GetBooking fetches one booking, owner only
func GetBooking(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var booking models.Booking
	if err := configuration.DB.First(&booking, "booking_id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		return
	}
	if booking.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized to view this booking"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"Status": "Success", "data": booking})
}

// CancelBooking cancels a booking while it is still pending. The update is
// conditional on the current status, so a payment confirmation landing at the
// same moment cannot be overwritten: whichever transition commits first wins
// and the loser sees zero affected rows.
func CancelBooking(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var booking models.Booking
	if err := configuration.DB.First(&booking, "booking_id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		return
	}
	if booking.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized to cancel this booking"})
		return
	}

	result := configuration.DB.Model(&models.Booking{}).
		Where("booking_id = ? AND status = ?", booking.BookingID, models.BookingPending).
		Update("status", models.BookingCancelled)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel booking"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot cancel a non-pending booking"})
		return
	}

	configuration.DB.First(&booking, booking.BookingID)
	c.JSON(http.StatusOK, gin.H{
		"Status":  "Success",
		"Message": "Booking cancelled successfully",
		"data":    booking,
	})
}
