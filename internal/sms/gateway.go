package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kishan11111/GujaratClassified-sub001/internal/model"
)

type sendRequest struct {
	APIKey   string `json:"apiKey"`
	SenderID string `json:"senderId"`
	To       string `json:"to"`
	Message  string `json:"message"`
}

type sendResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// errPermanent marks failures a retry cannot fix.
var errPermanent = errors.New("permanent sms gateway failure")

// GatewayClient posts messages to an HTTP SMS gateway.
type GatewayClient struct {
	url        string
	apiKey     string
	senderID   string
	httpClient *http.Client
	logger     *logrus.Logger
	retryCount int
	backoff    time.Duration
}

func NewGatewayClient(url, apiKey, senderID string, timeout time.Duration, logger *logrus.Logger) *GatewayClient {
	return &GatewayClient{
		url:      url,
		apiKey:   apiKey,
		senderID: senderID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:     logger,
		retryCount: 1,
		backoff:    200 * time.Millisecond,
	}
}

// Send delivers message to mobile. Transport errors and 5xx responses are retried once
// while ctx allows it.
func (c *GatewayClient) Send(ctx context.Context, mobile, message string) error {
	var lastErr error

	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"mobile":  model.MaskMobile(mobile),
			}).Info("Retrying SMS send")

			select {
			case <-ctx.Done():
				return fmt.Errorf("sms send cancelled: %w", ctx.Err())
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}

		err := c.sendOnce(ctx, mobile, message)
		if err == nil {
			c.logger.WithField("mobile", model.MaskMobile(mobile)).Info("SMS sent successfully")
			return nil
		}

		lastErr = err
		c.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
			"mobile":  model.MaskMobile(mobile),
		}).Error("Failed to send SMS")

		if errors.Is(err, errPermanent) {
			break
		}
	}

	return fmt.Errorf("failed to send sms: %w", lastErr)
}

func (c *GatewayClient) sendOnce(ctx context.Context, mobile, message string) error {
	jsonData, err := json.Marshal(sendRequest{
		APIKey:   c.apiKey,
		SenderID: c.senderID,
		To:       "91" + mobile,
		Message:  message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sms request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("%w: failed to create HTTP request: %v", errPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", errPermanent, resp.StatusCode)
	}

	var body sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", errPermanent, err)
	}
	if !body.Success {
		return fmt.Errorf("%w: %s", errPermanent, body.Message)
	}
	return nil
}
