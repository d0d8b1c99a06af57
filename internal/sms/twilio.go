package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"phone-auth/pkg/utils"

	"go.uber.org/zap"
)

// Gateway sends one SMS and returns the provider delivery id.
type Gateway interface {
	Send(ctx context.Context, to, body string) (string, error)
}

type twilioResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    any    `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// TwilioGateway talks to the Twilio Messages REST API over plain HTTP.
type TwilioGateway struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	client     *http.Client
	log        *zap.Logger
}

func NewTwilioGateway(config utils.SMSConfig, log *zap.Logger) *TwilioGateway {
	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}

	return &TwilioGateway{
		accountSID: config.AccountSID,
		authToken:  config.AuthToken,
		fromNumber: config.FromNumber,
		baseURL:    baseURL,
		client:     &http.Client{Timeout: timeout},
		log:        log.With(zap.String("gateway", "twilio")),
	}
}

func (g *TwilioGateway) Send(ctx context.Context, to, body string) (string, error) {
	if g.accountSID == "" || g.authToken == "" || g.fromNumber == "" {
		return "", fmt.Errorf("sms gateway is not configured")
	}

	apiURL := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", g.baseURL, g.accountSID)

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", g.fromNumber)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(g.accountSID, g.authToken)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Error("SMS request failed",
			zap.Error(err),
			zap.String("to", to),
		)
		return "", fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	var twilioResp twilioResponse
	if err := json.NewDecoder(resp.Body).Decode(&twilioResp); err != nil {
		return "", fmt.Errorf("decode sms response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		g.log.Error("SMS gateway rejected message",
			zap.Int("status", resp.StatusCode),
			zap.String("to", to),
			zap.String("error_message", twilioResp.ErrorMessage),
		)
		if twilioResp.ErrorMessage != "" {
			return "", fmt.Errorf("sms gateway error (status %d): %s", resp.StatusCode, twilioResp.ErrorMessage)
		}
		return "", fmt.Errorf("sms gateway error (status %d)", resp.StatusCode)
	}

	g.log.Info("SMS dispatched",
		zap.String("to", to),
		zap.String("sid", twilioResp.SID),
		zap.String("delivery_status", twilioResp.Status),
		zap.Duration("duration", time.Since(start)),
	)

	return twilioResp.SID, nil
}
