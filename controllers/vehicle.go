package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/prajwal01532/RideHubEsewa/configuration"
	"github.com/prajwal01532/RideHubEsewa/models"
)

const vehicleCacheTTL = 5 * time.Minute

type vehicleRequest struct {
	Type         string  `json:"type" binding:"required,oneof=car bike"`
	Name         string  `json:"name" binding:"required"`
	Brand        string  `json:"brand"`
	Year         int     `json:"year"`
	PricePerDay  float64 `json:"pricePerDay" binding:"required,gt=0"`
	DriverCharge float64 `json:"driverCharge" binding:"gte=0"`
	Description  string  `json:"description"`
	ImageURL     string  `json:"imageUrl"`
}

// AddVehicle creates a car or bike listing
func AddVehicle(c *gin.Context) {
	var req vehicleRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var created any
	switch req.Type {
	case models.VehicleTypeCar:
		car := models.Car{
			Name:         req.Name,
			Brand:        req.Brand,
			Year:         req.Year,
			PricePerDay:  req.PricePerDay,
			DriverCharge: req.DriverCharge,
			Description:  req.Description,
			ImageURL:     req.ImageURL,
			Available:    true,
		}
		if err := configuration.DB.Create(&car).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add vehicle"})
			return
		}
		created = car
	case models.VehicleTypeBike:
		bike := models.Bike{
			Name:         req.Name,
			Brand:        req.Brand,
			Year:         req.Year,
			PricePerDay:  req.PricePerDay,
			DriverCharge: req.DriverCharge,
			Description:  req.Description,
			ImageURL:     req.ImageURL,
			Available:    true,
		}
		if err := configuration.DB.Create(&bike).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add vehicle"})
			return
		}
		created = bike
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle type"})
		return
	}

	// drop the stale cached listing; best effort, the TTL covers the rest
	if configuration.Client != nil {
		_ = configuration.DeleteRedis(vehicleCacheKey(req.Type))
	}

	c.JSON(http.StatusCreated, gin.H{
		"Status":  "Success",
		"Message": "Vehicle added successfully",
		"data":    created,
	})
}

func vehicleCacheKey(vehicleType string) string {
	return "vehicles:" + vehicleType
}

// GetVehiclesByType lists vehicles of one type, newest first, with a short
// redis cache in front of the table
func GetVehiclesByType(c *gin.Context) {
	vehicleType := c.Param("type")
	if !models.ValidVehicleType(vehicleType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle type"})
		return
	}

	if configuration.Client != nil {
		if cached, err := configuration.GetRedis(vehicleCacheKey(vehicleType)); err == nil {
			var data any
			if err := json.Unmarshal([]byte(cached), &data); err == nil {
				c.JSON(http.StatusOK, gin.H{"Status": "Success", "data": data, "cached": true})
				return
			}
		}
	}

	var data any
	switch vehicleType {
	case models.VehicleTypeCar:
		var cars []models.Car
		if err := configuration.DB.Order("created_at desc").Find(&cars).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch vehicles"})
			return
		}
		data = cars
	case models.VehicleTypeBike:
		var bikes []models.Bike
		if err := configuration.DB.Order("created_at desc").Find(&bikes).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch vehicles"})
			return
		}
		data = bikes
	}

	if configuration.Client != nil {
		if raw, err := json.Marshal(data); err == nil {
			_ = configuration.SetRedis(vehicleCacheKey(vehicleType), raw, vehicleCacheTTL)
		}
	}

	c.JSON(http.StatusOK, gin.H{"Status": "Success", "data": data})
}

// GetVehicleByID fetches one vehicle through the type registry
func GetVehicleByID(c *gin.Context) {
	vehicleType := c.Param("type")
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle id"})
		return
	}

	vehicle, err := models.FindVehicle(configuration.DB, vehicleType, uint(id))
	if err != nil {
		if errors.Is(err, models.ErrUnknownVehicleType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle type"})
			return
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch vehicle"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"Status": "Success", "data": vehicle})
}
