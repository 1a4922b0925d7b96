package configuration

import "os"

// EsewaConfig carries the shared secret and endpoints for the eSewa ePay v2
// gateway. It is loaded once at startup and injected wherever signing or
// verification happens, never read from the environment inside the payment
// core.
type EsewaConfig struct {
	SecretKey   string
	ProductCode string
	PaymentURL  string // hosted payment form target
	GatewayURL  string // base URL for the transaction status API
	SuccessURL  string // our success callback endpoint
	FailureURL  string // our failure callback endpoint
}

// StripeConfig holds the card network credentials.
type StripeConfig struct {
	SecretKey string
}

type AppConfig struct {
	Esewa       EsewaConfig
	Stripe      StripeConfig
	FrontendURL string
}

// LoadAppConfig reads the payment gateway settings from the environment.
// Call after ConfigDB so godotenv has already loaded the .env file.
func LoadAppConfig() AppConfig {
	return AppConfig{
		Esewa: EsewaConfig{
			SecretKey:   os.Getenv("ESEWA_SECRET_KEY"),
			ProductCode: os.Getenv("ESEWA_PRODUCT_CODE"),
			PaymentURL:  os.Getenv("ESEWA_PAYMENT_URL"),
			GatewayURL:  os.Getenv("ESEWA_GATEWAY_URL"),
			SuccessURL:  os.Getenv("ESEWA_SUCCESS_URL"),
			FailureURL:  os.Getenv("ESEWA_FAILURE_URL"),
		},
		Stripe: StripeConfig{
			SecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		},
		FrontendURL: os.Getenv("FRONTEND_URL"),
	}
}
