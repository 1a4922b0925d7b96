package utils

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prajwal01532/RideHubEsewa/configuration"
)

// SignedFieldNames is the field set eSewa signs on payment initiation. The
// order inside the canonical string is the gateway's contract: both sides
// must concatenate exactly these fields in exactly this order, or every
// signature check fails. Do not reorder.
const SignedFieldNames = "total_amount,transaction_uuid,product_code"

// StatusComplete is the terminal success status of the transaction status API.
const StatusComplete = "COMPLETE"

// EsewaCallback is the payload eSewa appends to the success redirect as a
// base64 encoded "data" query parameter. Amounts stay as the raw strings the
// gateway signed; parse them only after the signature has been verified.
type EsewaCallback struct {
	TransactionCode  string `json:"transaction_code"`
	Status           string `json:"status"`
	TotalAmount      string `json:"total_amount"`
	TransactionUUID  string `json:"transaction_uuid"`
	ProductCode      string `json:"product_code"`
	SignedFieldNames string `json:"signed_field_names"`
	Signature        string `json:"signature"`
}

// EsewaStatus is the response of the transaction status API.
type EsewaStatus struct {
	ProductCode     string  `json:"product_code"`
	TransactionUUID string  `json:"transaction_uuid"`
	TotalAmount     float64 `json:"total_amount"`
	Status          string  `json:"status"`
	RefID           string  `json:"ref_id"`
}

func hmacSignature(data string, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// PaymentSignature signs the initiation fields for the hosted payment form.
func PaymentSignature(cfg configuration.EsewaConfig, totalAmount, transactionUUID string) string {
	data := fmt.Sprintf("total_amount=%s,transaction_uuid=%s,product_code=%s",
		totalAmount, transactionUUID, cfg.ProductCode)
	return hmacSignature(data, cfg.SecretKey)
}

// CallbackSignature recomputes the signature over a callback's raw fields in
// the order the gateway signed them.
func CallbackSignature(cfg configuration.EsewaConfig, cb *EsewaCallback) string {
	data := fmt.Sprintf("transaction_code=%s,status=%s,total_amount=%s,transaction_uuid=%s,product_code=%s,signed_field_names=%s",
		cb.TransactionCode, cb.Status, cb.TotalAmount, cb.TransactionUUID, cfg.ProductCode, cb.SignedFieldNames)
	return hmacSignature(data, cfg.SecretKey)
}

// VerifyCallbackSignature checks the callback's signature in constant time.
// Nothing in the callback payload may be trusted before this returns true.
func VerifyCallbackSignature(cfg configuration.EsewaConfig, cb *EsewaCallback) bool {
	expected := CallbackSignature(cfg, cb)
	return hmac.Equal([]byte(expected), []byte(cb.Signature))
}

// DecodeCallback decodes the base64 "data" query parameter of the success
// redirect. eSewa uses standard encoding but some flows arrive URL-safe.
func DecodeCallback(encoded string) (*EsewaCallback, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decoding callback data: %w", err)
		}
	}
	var cb EsewaCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("parsing callback data: %w", err)
	}
	return &cb, nil
}

// PaymentParams builds the signed form fields for the hosted payment page.
func PaymentParams(cfg configuration.EsewaConfig, totalAmount, transactionUUID string) map[string]string {
	return map[string]string{
		"amount":                  totalAmount,
		"tax_amount":              "0",
		"product_service_charge":  "0",
		"product_delivery_charge": "0",
		"total_amount":            totalAmount,
		"transaction_uuid":        transactionUUID,
		"product_code":            cfg.ProductCode,
		"success_url":             cfg.SuccessURL,
		"failure_url":             cfg.FailureURL,
		"signed_field_names":      SignedFieldNames,
		"signature":               PaymentSignature(cfg, totalAmount, transactionUUID),
	}
}

// PaymentRedirectURL is the hosted payment page with the signed fields as
// query parameters. Building it is stateless, so initiation is safe to retry.
func PaymentRedirectURL(cfg configuration.EsewaConfig, totalAmount, transactionUUID string) string {
	form := url.Values{}
	for key, value := range PaymentParams(cfg, totalAmount, transactionUUID) {
		form.Set(key, value)
	}
	return cfg.PaymentURL + "?" + form.Encode()
}

// EsewaClient talks to the gateway's transaction status API.
type EsewaClient struct {
	Config configuration.EsewaConfig
	HTTP   *http.Client
}

func NewEsewaClient(cfg configuration.EsewaConfig) *EsewaClient {
	return &EsewaClient{
		Config: cfg,
		HTTP:   &http.Client{Timeout: 15 * time.Second},
	}
}

// CheckStatus queries the gateway for the authoritative state of a
// transaction. The callback payload alone is never trusted; this is the
// second, server-to-server leg of verification.
func (c *EsewaClient) CheckStatus(ctx context.Context, transactionUUID, totalAmount string) (*EsewaStatus, error) {
	query := url.Values{}
	query.Set("product_code", c.Config.ProductCode)
	query.Set("total_amount", totalAmount)
	query.Set("transaction_uuid", transactionUUID)
	endpoint := fmt.Sprintf("%s/api/epay/transaction/status/?%s", c.Config.GatewayURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status API returned %d", resp.StatusCode)
	}

	var status EsewaStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decoding status response: %w", err)
	}
	return &status, nil
}
