package routes

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/prajwal01532/RideHubEsewa/authentication"
	"github.com/prajwal01532/RideHubEsewa/controllers"
)

func SetupRoutes(pay *controllers.PaymentController) *gin.Engine {
	//creates a new Gin engine instance with default configurations
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
	}))

	//public routes
	r.POST("/users/signup", controllers.Signup)
	r.POST("/users/login", controllers.Login)
	r.GET("/vehicles/:type", controllers.GetVehiclesByType)
	r.GET("/vehicles/:type/:id", controllers.GetVehicleByID)

	//gateway callbacks arrive from the browser without our auth header
	r.GET("/bookings/payments/success", pay.PaymentSuccess)
	r.GET("/bookings/payments/failure", pay.PaymentFailure)

	user := r.Group("/")
	user.Use(authentication.UserAuthMiddleware())
	{
		user.POST("/vehicles", controllers.AddVehicle)
		user.POST("/bookings", controllers.CreateBooking)
		user.GET("/bookings", controllers.GetBookings)
		user.GET("/bookings/view/:id", controllers.GetBooking)
		user.POST("/bookings/cancel/:id", controllers.CancelBooking)
		user.POST("/bookings/payments/initiate", pay.InitiateEsewaPayment)
		user.POST("/payments/initiate", pay.InitiatePayment)
		user.GET("/payments/:id/status", pay.GetPaymentStatus)
	}

	return r
}
