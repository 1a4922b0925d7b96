package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	VehicleTypeCar  = "car"
	VehicleTypeBike = "bike"
)

var ErrUnknownVehicleType = errors.New("unknown vehicle type")

type Car struct {
	CarID        uint      `gorm:"primaryKey" json:"car_id"`
	Name         string    `gorm:"not null" json:"name"`
	Brand        string    `json:"brand"`
	Year         int       `json:"year"`
	PricePerDay  float64   `gorm:"not null" json:"price_per_day"`
	DriverCharge float64   `json:"driver_charge"`
	Description  string    `json:"description"`
	ImageURL     string    `json:"image_url"`
	Available    bool      `gorm:"default:true" json:"available"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

type Bike struct {
	BikeID       uint      `gorm:"primaryKey" json:"bike_id"`
	Name         string    `gorm:"not null" json:"name"`
	Brand        string    `json:"brand"`
	Year         int       `json:"year"`
	PricePerDay  float64   `gorm:"not null" json:"price_per_day"`
	DriverCharge float64   `json:"driver_charge"`
	Description  string    `json:"description"`
	ImageURL     string    `json:"image_url"`
	Available    bool      `gorm:"default:true" json:"available"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// VehicleInfo is the common view of a rentable vehicle, whichever table it
// lives in. Booking and pricing only ever see this shape.
type VehicleInfo struct {
	ID           uint    `json:"id"`
	Type         string  `json:"type"`
	Name         string  `json:"name"`
	Brand        string  `json:"brand"`
	PricePerDay  float64 `json:"price_per_day"`
	DriverCharge float64 `json:"driver_charge"`
	Available    bool    `json:"available"`
}

func (c Car) Info() *VehicleInfo {
	return &VehicleInfo{
		ID:           c.CarID,
		Type:         VehicleTypeCar,
		Name:         c.Name,
		Brand:        c.Brand,
		PricePerDay:  c.PricePerDay,
		DriverCharge: c.DriverCharge,
		Available:    c.Available,
	}
}

func (b Bike) Info() *VehicleInfo {
	return &VehicleInfo{
		ID:           b.BikeID,
		Type:         VehicleTypeBike,
		Name:         b.Name,
		Brand:        b.Brand,
		PricePerDay:  b.PricePerDay,
		DriverCharge: b.DriverCharge,
		Available:    b.Available,
	}
}

// vehicleFinders maps a vehicle type tag to the lookup against its table.
// New vehicle kinds register here instead of branching on type strings at
// call sites.
var vehicleFinders = map[string]func(db *gorm.DB, id uint) (*VehicleInfo, error){
	VehicleTypeCar: func(db *gorm.DB, id uint) (*VehicleInfo, error) {
		var car Car
		if err := db.First(&car, id).Error; err != nil {
			return nil, err
		}
		return car.Info(), nil
	},
	VehicleTypeBike: func(db *gorm.DB, id uint) (*VehicleInfo, error) {
		var bike Bike
		if err := db.First(&bike, id).Error; err != nil {
			return nil, err
		}
		return bike.Info(), nil
	},
}

// FindVehicle resolves a vehicle reference through the type registry.
func FindVehicle(db *gorm.DB, vehicleType string, id uint) (*VehicleInfo, error) {
	finder, ok := vehicleFinders[vehicleType]
	if !ok {
		return nil, ErrUnknownVehicleType
	}
	return finder(db, id)
}

// ValidVehicleType reports whether the tag has a registered table.
func ValidVehicleType(vehicleType string) bool {
	_, ok := vehicleFinders[vehicleType]
	return ok
}
