package controllers_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/prajwal01532/RideHubEsewa/authentication"
	"github.com/prajwal01532/RideHubEsewa/configuration"
	"github.com/prajwal01532/RideHubEsewa/controllers"
	"github.com/prajwal01532/RideHubEsewa/models"
	"github.com/prajwal01532/RideHubEsewa/routes"
	"github.com/prajwal01532/RideHubEsewa/services"
	"github.com/prajwal01532/RideHubEsewa/utils"
)

var testConfig = configuration.AppConfig{
	Esewa: configuration.EsewaConfig{
		SecretKey:   "8gBm/:&EnhH.1/q(",
		ProductCode: "EPAYTEST",
		PaymentURL:  "https://rc-epay.esewa.com.np/api/epay/main/v2/form",
		GatewayURL:  "https://rc.esewa.com.np",
		SuccessURL:  "http://localhost:8080/bookings/payments/success",
		FailureURL:  "http://localhost:8080/bookings/payments/failure",
	},
	FrontendURL: "http://localhost:3000",
}

type stubGateway struct {
	CheckStatusFunc func(ctx context.Context, transactionUUID, totalAmount string) (*utils.EsewaStatus, error)
}

func (s *stubGateway) CheckStatus(ctx context.Context, transactionUUID, totalAmount string) (*utils.EsewaStatus, error) {
	if s.CheckStatusFunc != nil {
		return s.CheckStatusFunc(ctx, transactionUUID, totalAmount)
	}
	return nil, errors.New("no gateway configured")
}

type stubCharger struct {
	ChargeFunc func(ctx context.Context, amount float64, currency string, card *services.CardDetails) (*services.ChargeResult, error)
}

func (s *stubCharger) Charge(ctx context.Context, amount float64, currency string, card *services.CardDetails) (*services.ChargeResult, error) {
	if s.ChargeFunc != nil {
		return s.ChargeFunc(ctx, amount, currency, card)
	}
	return nil, errors.New("no charger configured")
}

// setupApp wires the full router over a fresh in-memory database. The shared
// configuration.DB global is swapped per test; tests in this package do not
// run in parallel.
func setupApp(t *testing.T) (*gin.Engine, *gorm.DB, *stubGateway) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Car{}, &models.Bike{}, &models.Booking{}, &models.Payment{}); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	configuration.DB = db

	gateway := &stubGateway{}
	service := &services.PaymentService{
		DB:      db,
		Esewa:   testConfig.Esewa,
		Gateway: gateway,
		Charger: &stubCharger{},
	}
	router := routes.SetupRoutes(controllers.NewPaymentController(service, testConfig))
	return router, db, gateway
}

func seedUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	user := models.User{Name: "Test Renter", Email: email, Password: string(hash)}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return user
}

func seedCar(t *testing.T, db *gorm.DB) models.Car {
	t.Helper()
	car := models.Car{
		Name:         "Suzuki Swift",
		Brand:        "Suzuki",
		Year:         2022,
		PricePerDay:  1000,
		DriverCharge: 500,
		Available:    true,
	}
	if err := db.Create(&car).Error; err != nil {
		t.Fatalf("seeding car: %v", err)
	}
	return car
}

func tokenFor(t *testing.T, user models.User) string {
	t.Helper()
	token, err := authentication.GenerateUserToken(user.UserID, user.Email)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	return token
}

func doJSON(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func mustUnescape(t *testing.T, escaped string) string {
	t.Helper()
	raw, err := url.QueryUnescape(escaped)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestSignupAndLogin(t *testing.T) {
	router, _, _ := setupApp(t)

	t.Run("Given a new email When signing up Then the account is created", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/users/signup", "", gin.H{
			"name": "Test Renter", "email": "renter@example.com", "password": "password123",
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("Given a taken email When signing up Then it is rejected", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/users/signup", "", gin.H{
			"name": "Someone Else", "email": "renter@example.com", "password": "password123",
		})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("Given valid credentials When logging in Then a token is issued", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/users/login", "", gin.H{
			"email": "renter@example.com", "password": "password123",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if token, _ := decodeBody(t, w)["token"].(string); token == "" {
			t.Error("expected a token in the response")
		}
	})

	t.Run("Given a wrong password When logging in Then it is rejected", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/users/login", "", gin.H{
			"email": "renter@example.com", "password": "wrong-password",
		})
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})
}

func TestVehicleEndpoints(t *testing.T) {
	router, db, _ := setupApp(t)
	user := seedUser(t, db, "owner@example.com")
	token := tokenFor(t, user)

	t.Run("Given a listing When added Then it appears in the type listing", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/vehicles", token, gin.H{
			"type": "car", "name": "Suzuki Swift", "pricePerDay": 1000, "driverCharge": 500,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}

		w = doJSON(router, http.MethodGet, "/vehicles/car", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if data, _ := decodeBody(t, w)["data"].([]any); len(data) != 1 {
			t.Errorf("expected one car, got %v", data)
		}
	})

	t.Run("Given an unknown type When listed Then it is rejected", func(t *testing.T) {
		if w := doJSON(router, http.MethodGet, "/vehicles/boat", "", nil); w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("Given an id When fetched Then the registry resolves it", func(t *testing.T) {
		car := seedCar(t, db)
		w := doJSON(router, http.MethodGet, fmt.Sprintf("/vehicles/car/%d", car.CarID), "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if w := doJSON(router, http.MethodGet, "/vehicles/car/99999", "", nil); w.Code != http.StatusNotFound {
			t.Errorf("expected 404 for a missing vehicle, got %d", w.Code)
		}
	})
}

func TestCreateBooking(t *testing.T) {
	router, db, _ := setupApp(t)
	user := seedUser(t, db, "renter@example.com")
	token := tokenFor(t, user)
	car := seedCar(t, db)

	request := func(total float64) gin.H {
		return gin.H{
			"vehicleId":      car.CarID,
			"vehicleType":    "car",
			"startDate":      time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			"endDate":        time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC),
			"requiresDriver": true,
			"totalAmount":    total,
		}
	}

	t.Run("Given a three day rental with driver When created Then the server prices it", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/bookings", token, request(0))
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		data, _ := decodeBody(t, w)["data"].(map[string]any)
		if data["total_amount"] != 4500.0 {
			t.Errorf("expected total 4500, got %v", data["total_amount"])
		}
		if data["status"] != models.BookingPending {
			t.Errorf("expected a pending booking, got %v", data["status"])
		}
	})

	t.Run("Given a client total that disagrees When created Then it is rejected", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/bookings", token, request(4000))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
		}
		if body := decodeBody(t, w); body["expected"] != 4500.0 {
			t.Errorf("expected the server total in the rejection, got %v", body["expected"])
		}
	})

	t.Run("Given no token When created Then it is unauthorized", func(t *testing.T) {
		if w := doJSON(router, http.MethodPost, "/bookings", "", request(0)); w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})
}

func TestCancelBooking(t *testing.T) {
	router, db, _ := setupApp(t)
	user := seedUser(t, db, "renter@example.com")
	token := tokenFor(t, user)
	other := seedUser(t, db, "other@example.com")
	otherToken := tokenFor(t, other)

	booking := models.Booking{
		UserID: user.UserID, VehicleID: 1, VehicleType: "car",
		StartDate: time.Now(), EndDate: time.Now().Add(72 * time.Hour),
		TotalAmount: 4500, PaymentStatus: models.BookingPaymentPending, Status: models.BookingPending,
	}
	if err := db.Create(&booking).Error; err != nil {
		t.Fatal(err)
	}
	cancelPath := fmt.Sprintf("/bookings/cancel/%d", booking.BookingID)

	t.Run("Given another user's token When cancelling Then it is forbidden", func(t *testing.T) {
		if w := doJSON(router, http.MethodPost, cancelPath, otherToken, nil); w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
	})

	t.Run("Given a pending booking When cancelled Then it flips exactly once", func(t *testing.T) {
		if w := doJSON(router, http.MethodPost, cancelPath, token, nil); w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if w := doJSON(router, http.MethodPost, cancelPath, token, nil); w.Code != http.StatusBadRequest {
			t.Errorf("expected 400 on the second cancel, got %d", w.Code)
		}
	})

	t.Run("Given a confirmed booking When cancelled Then it is rejected", func(t *testing.T) {
		confirmed := models.Booking{
			UserID: user.UserID, VehicleID: 1, VehicleType: "car",
			StartDate: time.Now(), EndDate: time.Now().Add(72 * time.Hour),
			TotalAmount: 4500, PaymentStatus: models.BookingPaymentCompleted, Status: models.BookingConfirmed,
		}
		if err := db.Create(&confirmed).Error; err != nil {
			t.Fatal(err)
		}
		w := doJSON(router, http.MethodPost, fmt.Sprintf("/bookings/cancel/%d", confirmed.BookingID), token, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestEsewaPaymentFlow(t *testing.T) {
	router, db, gateway := setupApp(t)
	user := seedUser(t, db, "renter@example.com")
	token := tokenFor(t, user)

	booking := models.Booking{
		UserID: user.UserID, VehicleID: 1, VehicleType: "car", VehicleName: "Suzuki Swift",
		StartDate: time.Now(), EndDate: time.Now().Add(72 * time.Hour),
		TotalAmount: 4500, PaymentStatus: models.BookingPaymentPending, Status: models.BookingPending,
	}
	if err := db.Create(&booking).Error; err != nil {
		t.Fatal(err)
	}

	var transactionUUID string

	t.Run("Given a pending booking When initiating Then the signed redirect comes back", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/bookings/payments/initiate", token, gin.H{
			"bookingId": booking.BookingID, "amount": 4500,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		if body["success"] != true {
			t.Error("expected success true")
		}
		if url, _ := body["url"].(string); !strings.HasPrefix(url, testConfig.Esewa.PaymentURL) {
			t.Errorf("redirect does not target the payment form: %v", body["url"])
		}
		transactionUUID, _ = body["transaction_id"].(string)
		if transactionUUID == "" {
			t.Fatal("expected a transaction id")
		}
	})

	callback := func(amount string) string {
		cb := &utils.EsewaCallback{
			TransactionCode:  "000AWEO",
			Status:           "COMPLETE",
			TotalAmount:      amount,
			TransactionUUID:  transactionUUID,
			ProductCode:      testConfig.Esewa.ProductCode,
			SignedFieldNames: "transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names",
		}
		cb.Signature = utils.CallbackSignature(testConfig.Esewa, cb)
		raw, _ := json.Marshal(cb)
		// the browser delivers this as a query parameter, so escape it
		return url.QueryEscape(base64.StdEncoding.EncodeToString(raw))
	}

	t.Run("Given a tampered callback When it lands Then the browser goes to the failure page", func(t *testing.T) {
		raw, _ := base64.StdEncoding.DecodeString(mustUnescape(t, callback("4500")))
		tampered := strings.Replace(string(raw), "4500", "9999", 1)
		encoded := url.QueryEscape(base64.StdEncoding.EncodeToString([]byte(tampered)))

		w := doJSON(router, http.MethodGet, "/bookings/payments/success?data="+encoded, "", nil)
		if w.Code != http.StatusSeeOther {
			t.Fatalf("expected 303, got %d", w.Code)
		}
		if loc := w.Header().Get("Location"); !strings.Contains(loc, "/payment/failure?error=invalid_signature") {
			t.Errorf("expected the invalid signature failure page, got %s", loc)
		}
	})

	t.Run("Given a valid callback When it lands Then the booking confirms and the browser goes to the success page", func(t *testing.T) {
		gateway.CheckStatusFunc = func(ctx context.Context, uuid, amount string) (*utils.EsewaStatus, error) {
			return &utils.EsewaStatus{
				ProductCode:     testConfig.Esewa.ProductCode,
				TransactionUUID: uuid,
				TotalAmount:     4500,
				Status:          utils.StatusComplete,
				RefID:           "0001TX",
			}, nil
		}

		w := doJSON(router, http.MethodGet, "/bookings/payments/success?data="+callback("4500"), "", nil)
		if w.Code != http.StatusSeeOther {
			t.Fatalf("expected 303, got %d: %s", w.Code, w.Body.String())
		}
		want := fmt.Sprintf("%s/payment/success?bookingId=%d", testConfig.FrontendURL, booking.BookingID)
		if loc := w.Header().Get("Location"); loc != want {
			t.Errorf("expected redirect to %s, got %s", want, loc)
		}

		var got models.Booking
		db.First(&got, booking.BookingID)
		if got.Status != models.BookingConfirmed || got.PaymentStatus != models.BookingPaymentCompleted {
			t.Errorf("unexpected booking: status=%s payment_status=%s", got.Status, got.PaymentStatus)
		}
	})

	t.Run("Given the callback replayed When it lands Then it still resolves to the success page", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/bookings/payments/success?data="+callback("4500"), "", nil)
		if w.Code != http.StatusSeeOther {
			t.Fatalf("expected 303, got %d", w.Code)
		}
		if loc := w.Header().Get("Location"); !strings.Contains(loc, "/payment/success?bookingId=") {
			t.Errorf("replay must land on the success page, got %s", loc)
		}
	})

	t.Run("Given a stale failure hit after completion When it lands Then the confirmed booking is untouched", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/bookings/payments/failure?transaction_uuid="+transactionUUID, "", nil)
		if w.Code != http.StatusSeeOther {
			t.Fatalf("expected 303, got %d", w.Code)
		}
		if loc := w.Header().Get("Location"); !strings.Contains(loc, "/payment/success?bookingId=") {
			t.Errorf("a completed payment must resolve to the success page, got %s", loc)
		}

		var got models.Booking
		db.First(&got, booking.BookingID)
		if got.Status != models.BookingConfirmed || got.PaymentStatus != models.BookingPaymentCompleted {
			t.Errorf("unexpected booking: status=%s payment_status=%s", got.Status, got.PaymentStatus)
		}
	})
}

func TestEsewaFailureLeg(t *testing.T) {
	router, db, _ := setupApp(t)
	user := seedUser(t, db, "renter@example.com")
	token := tokenFor(t, user)

	booking := models.Booking{
		UserID: user.UserID, VehicleID: 1, VehicleType: "car",
		StartDate: time.Now(), EndDate: time.Now().Add(72 * time.Hour),
		TotalAmount: 4500, PaymentStatus: models.BookingPaymentPending, Status: models.BookingPending,
	}
	if err := db.Create(&booking).Error; err != nil {
		t.Fatal(err)
	}

	w := doJSON(router, http.MethodPost, "/bookings/payments/initiate", token, gin.H{
		"bookingId": booking.BookingID, "amount": 4500,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("initiation failed: %s", w.Body.String())
	}
	transactionUUID, _ := decodeBody(t, w)["transaction_id"].(string)

	w = doJSON(router, http.MethodGet, "/bookings/payments/failure?transaction_uuid="+transactionUUID, "", nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); !strings.Contains(loc, "/payment/failure?error=payment_failed") {
		t.Errorf("expected the failure page, got %s", loc)
	}

	var payment models.Payment
	if err := db.First(&payment, "transaction_id = ?", transactionUUID).Error; err != nil {
		t.Fatal(err)
	}
	if payment.Status != models.PaymentFailed {
		t.Errorf("expected FAILED, got %s", payment.Status)
	}
	var got models.Booking
	db.First(&got, booking.BookingID)
	if got.PaymentStatus != models.BookingPaymentFailed || got.Status != models.BookingPending {
		t.Errorf("unexpected booking: status=%s payment_status=%s", got.Status, got.PaymentStatus)
	}
}

func TestGetPaymentStatus(t *testing.T) {
	router, db, _ := setupApp(t)
	user := seedUser(t, db, "renter@example.com")
	token := tokenFor(t, user)
	other := seedUser(t, db, "other@example.com")
	otherToken := tokenFor(t, other)

	booking := models.Booking{
		UserID: user.UserID, VehicleID: 1, VehicleType: "car",
		StartDate: time.Now(), EndDate: time.Now().Add(72 * time.Hour),
		TotalAmount: 4500, PaymentStatus: models.BookingPaymentPending, Status: models.BookingPending,
	}
	if err := db.Create(&booking).Error; err != nil {
		t.Fatal(err)
	}

	w := doJSON(router, http.MethodPost, "/payments/initiate", token, gin.H{
		"bookingId": booking.BookingID, "amount": 4500, "paymentMethod": models.PaymentMethodCOD,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("initiation failed: %s", w.Body.String())
	}
	payment, _ := decodeBody(t, w)["payment"].(map[string]any)
	paymentID, _ := payment["payment_id"].(string)
	if paymentID == "" {
		t.Fatal("expected a payment id")
	}
	statusPath := "/payments/" + paymentID + "/status"

	t.Run("Given the owner When queried Then the ledger entry comes back", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, statusPath, token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		view, _ := decodeBody(t, w)["payment"].(map[string]any)
		if view["status"] != models.PaymentPending || view["payment_method"] != models.PaymentMethodCOD {
			t.Errorf("unexpected view: %v", view)
		}
	})

	t.Run("Given another user When queried Then it is forbidden", func(t *testing.T) {
		if w := doJSON(router, http.MethodGet, statusPath, otherToken, nil); w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
	})

	t.Run("Given an unknown id When queried Then it is not found", func(t *testing.T) {
		if w := doJSON(router, http.MethodGet, "/payments/no-such-id/status", token, nil); w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})
}
