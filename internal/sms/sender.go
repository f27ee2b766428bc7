package sms

import (
	"context"
	"log"
	"strings"
)

// Sender dispatches a one-time code to a phone number over an out-of-band
// channel. The verification engine assumes delivery succeeds; implementations
// handle their own failures.
type Sender interface {
	Send(ctx context.Context, phone, code string)
}

// LogSender is a stand-in dispatcher for environments without an SMS gateway.
// It logs that a code was dispatched but never the code itself.
type LogSender struct{}

// NewLogSender creates a LogSender.
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Send logs the dispatch with a masked phone number.
func (s *LogSender) Send(ctx context.Context, phone, code string) {
	log.Printf("SMS dispatch: code sent to %s", MaskPhone(phone))
}

// MaskPhone masks a phone number for logging (e.g. 55******67).
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}
