package main

import (
	"log"

	"github.com/prajwal01532/RideHubEsewa/configuration"
	"github.com/prajwal01532/RideHubEsewa/controllers"
	"github.com/prajwal01532/RideHubEsewa/routes"
	"github.com/prajwal01532/RideHubEsewa/services"
)

func Init() {
	configuration.ConfigDB()
	configuration.InitRedis()
}

func main() {
	//Perform application initialization
	Init()

	cfg := configuration.LoadAppConfig()
	charger := services.NewStripeCharger(cfg.Stripe.SecretKey)
	service := services.NewPaymentService(configuration.DB, cfg, charger)
	pay := controllers.NewPaymentController(service, cfg)

	r := routes.SetupRoutes(pay)

	//Run the engine in default port
	if err := r.Run(); err != nil {
		log.Fatal(err)
	}
}
