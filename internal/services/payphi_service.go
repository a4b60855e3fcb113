package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parkpass/ticketing-backend/internal/apperr"
	"github.com/parkpass/ticketing-backend/internal/config"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	payphiInitiatePath = "/pg/api/v2/initiateSale"
	payphiCommandPath  = "/pg/api/command"
	payphiHashField    = "secureHash"
	payphiTxnDate      = "20060102150405"
)

// Success allow-lists. The HTTP status never decides success.
var (
	payphiSuccessStatuses = map[string]bool{"SUC": true, "SUCCESS": true, "CAPTURED": true, "COMPLETED": true}
	payphiSuccessCodes    = map[string]bool{"0000": true, "000": true}
	payphiInitiateCodes   = map[string]bool{"R1000": true, "0000": true}
)

// PayPhiService handles payment gateway integration with the PayPhi
// HMAC-signed hosted checkout.
type PayPhiService struct {
	config *config.PaymentConfig
	logger *logrus.Logger
	client *http.Client
	now    func() time.Time
}

// NewPayPhiService creates a new PayPhi payment service
func NewPayPhiService(cfg *config.PaymentConfig, logger *logrus.Logger) *PayPhiService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PayPhiService{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// IsConfigured returns true if payment gateway is properly configured
func (s *PayPhiService) IsConfigured() bool {
	return s.config.IsConfigured()
}

// CanonicalString drops the hash field and empty values, sorts the remaining
// keys ascending and concatenates their values with no separator.
func CanonicalString(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == payphiHashField || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(params[k])
	}
	return b.String()
}

// SignParams returns HMAC-SHA256(canonical string, secret) as lowercase hex
func SignParams(params map[string]string, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(CanonicalString(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewCorrelationID derives a per-attempt merchant transaction number from a
// booking or cart reference: <ref>-<base36 unix millis>-<4 hex>.
//
// PayPhi rejects a merchantTxnNo it has already seen, even for an attempt
// that was abandoned, so every retried initiation needs a fresh one. This is
// a gateway quirk; the booking/cart reference stays the stable identifier.
func NewCorrelationID(ref string) string {
	suffix := make([]byte, 2)
	if _, err := rand.Read(suffix); err != nil {
		// time component alone still differs per millisecond
		return fmt.Sprintf("%s-%s", ref, strconv.FormatInt(time.Now().UnixMilli(), 36))
	}
	return fmt.Sprintf("%s-%s-%s", ref, strconv.FormatInt(time.Now().UnixMilli(), 36), hex.EncodeToString(suffix))
}

func formatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// Initiate starts a hosted sale and returns the redirect URL and tranCtx token
func (s *PayPhiService) Initiate(ctx context.Context, p models.InitiateParams) (*models.PaymentInitiation, error) {
	if !s.IsConfigured() {
		return nil, apperr.Gateway("initiate", fmt.Errorf("payment gateway not configured: missing merchant credentials"))
	}
	if p.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperr.Validation("amount must be positive")
	}

	params := map[string]string{
		"merchantId":       s.config.MerchantID,
		"merchantTxnNo":    p.CorrelationID,
		"amount":           formatAmount(p.Amount),
		"currencyCode":     s.config.CurrencyCode,
		"payType":          "0",
		"customerEmailID":  p.Customer.Email,
		"customerMobileNo": p.Customer.Mobile,
		"transactionType":  "SALE",
		"returnURL":        s.config.ReturnURL,
		"txnDate":          s.now().Format(payphiTxnDate),
	}
	params[payphiHashField] = SignParams(params, s.config.SecretKey)

	s.logger.WithFields(logrus.Fields{
		"correlation_id": p.CorrelationID,
		"amount":         params["amount"],
		"currency":       params["currencyCode"],
	}).Info("Initiating PayPhi payment")

	jsonBody, err := json.Marshal(params)
	if err != nil {
		return nil, apperr.Gateway("initiate", fmt.Errorf("failed to marshal request: %w", err))
	}
	raw, err := s.post(ctx, s.config.BaseURL+payphiInitiatePath, "application/json", jsonBody)
	if err != nil {
		return nil, apperr.Gateway("initiate", err)
	}

	code := responseCode(raw)
	if !payphiInitiateCodes[code] {
		msg := firstString(raw, "responseMessage", "respDescription", "message")
		return nil, apperr.Gateway("initiate", fmt.Errorf("payment initiation rejected: code=%s message=%s", code, msg))
	}
	redirectURI := firstString(raw, "redirectURI")
	tranCtx := firstString(raw, "tranCtx")
	if redirectURI == "" || tranCtx == "" {
		return nil, apperr.Gateway("initiate", fmt.Errorf("payment initiation failed: no redirect returned"))
	}

	s.logger.WithFields(logrus.Fields{
		"correlation_id": p.CorrelationID,
		"tran_ctx":       tranCtx,
	}).Info("PayPhi payment initiated successfully")

	return &models.PaymentInitiation{
		CorrelationID: p.CorrelationID,
		Token:         tranCtx,
		RedirectURL:   redirectURI + "?tranCtx=" + url.QueryEscape(tranCtx),
		Raw:           raw,
	}, nil
}

// Status queries the outcome of the sale identified by correlationID
func (s *PayPhiService) Status(ctx context.Context, correlationID string) (*models.GatewayResult, error) {
	params := map[string]string{
		"merchantID":      s.config.MerchantID,
		"merchantTxnNo":   correlationID,
		"originalTxnNo":   correlationID,
		"transactionType": "STATUS",
	}
	return s.command(ctx, "status", params)
}

// Refund refunds amount of the sale originalID under the new refundID
func (s *PayPhiService) Refund(ctx context.Context, refundID, originalID string, amount decimal.Decimal) (*models.GatewayResult, error) {
	params := map[string]string{
		"merchantID":      s.config.MerchantID,
		"merchantTxnNo":   refundID,
		"originalTxnNo":   originalID,
		"amount":          formatAmount(amount),
		"transactionType": "REFUND",
	}
	return s.command(ctx, "refund", params)
}

func (s *PayPhiService) command(ctx context.Context, op string, params map[string]string) (*models.GatewayResult, error) {
	if !s.IsConfigured() {
		return nil, apperr.Gateway(op, fmt.Errorf("payment gateway not configured: missing merchant credentials"))
	}
	params[payphiHashField] = SignParams(params, s.config.SecretKey)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	s.logger.WithFields(logrus.Fields{
		"operation":       op,
		"merchant_txn_no": params["merchantTxnNo"],
	}).Info("Sending PayPhi command")

	raw, err := s.post(ctx, s.config.BaseURL+payphiCommandPath, "application/x-www-form-urlencoded", []byte(form.Encode()))
	if err != nil {
		return nil, apperr.Gateway(op, err)
	}

	result := &models.GatewayResult{
		Success: IsSuccess(raw),
		Code:    responseCode(raw),
		Message: firstString(raw, "txnRespDescription", "respDescription", "responseMessage", "message"),
		Amount:  gatewayAmount(raw),
		Raw:     raw,
	}
	s.logger.WithFields(logrus.Fields{
		"operation": op,
		"success":   result.Success,
		"code":      result.Code,
	}).Info("PayPhi command response")
	return result, nil
}

// post sends body and decodes a JSON object response. Non-2xx responses with a
// JSON body are still decoded; the caller decides success from its fields.
func (s *PayPhiService) post(ctx context.Context, endpoint, contentType string, body []byte) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.WithError(err).Error("Failed to call PayPhi endpoint")
		return nil, fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		s.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"body":        string(respBody),
		}).Error("Failed to parse PayPhi response")
		return nil, fmt.Errorf("payment gateway returned status %d with unparseable body: %w", resp.StatusCode, err)
	}
	return raw, nil
}

// IsSuccess normalizes the gateway's success encodings into one boolean.
// A status string, when present, decides; otherwise the response code does.
func IsSuccess(raw map[string]interface{}) bool {
	if status := firstString(raw, "txnStatus", "status", "paymentStatus"); status != "" {
		return payphiSuccessStatuses[strings.ToUpper(status)]
	}
	return payphiSuccessCodes[responseCode(raw)]
}

// responseCode reads the gateway response code. Codes decoded as JSON numbers
// lose their leading zeros, so integral ones are padded back to four digits.
func responseCode(raw map[string]interface{}) string {
	for _, k := range []string{"txnResponseCode", "responseCode"} {
		if n, ok := raw[k].(float64); ok && n >= 0 && n < 10000 && n == float64(int(n)) {
			return fmt.Sprintf("%04d", int(n))
		}
		if code := firstString(raw, k); code != "" {
			return code
		}
	}
	return ""
}

// gatewayAmount reads the amount the gateway reports for the transaction, if any
func gatewayAmount(raw map[string]interface{}) decimal.NullDecimal {
	v := firstString(raw, "amount", "txnAmount")
	if v == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// firstString returns the first non-empty field among keys, stringifying numbers
func firstString(raw map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(t)
		default:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
