package sms

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/kishan11111/GujaratClassified-sub001/internal/model"
)

// LogSender stands in for the gateway in development. It never logs the message body.
type LogSender struct {
	logger *logrus.Logger
}

func NewLogSender(logger *logrus.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, mobile, message string) error {
	s.logger.WithFields(logrus.Fields{
		"mobile": model.MaskMobile(mobile),
		"length": len(message),
	}).Info("SMS gateway not configured, message dropped")
	return nil
}
