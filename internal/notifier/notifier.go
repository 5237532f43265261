// Package notifier delivers one-time verification codes to users.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
)

// Notifier sends a verification code to the given address. Delivery
// failure is surfaced to the caller: the user cannot complete the flow
// without the code, so a swallowed error would strand them.
type Notifier interface {
	SendVerificationCode(ctx context.Context, email, username, code string) error
}

// Subject and body follow the wording users already receive.
const (
	verificationSubject = "Your Botnev Verification Code"
	verificationBody    = `Hello %s,

Your verification code is: %s

This verification code is required to ensure the security of your Botnev account. This code is one-time use only.

For support, contact us at: support@botnev.com

Best regards,
The Botnev Team`
)

// VerificationMessage renders the subject and body for a code email.
func VerificationMessage(username, code string) (subject, body string) {
	return verificationSubject, fmt.Sprintf(verificationBody, username, code)
}

// LogNotifier writes codes to the log instead of sending email.
// Development and test use only.
type LogNotifier struct {
	Logger *slog.Logger
}

// SendVerificationCode implements Notifier.
func (n LogNotifier) SendVerificationCode(ctx context.Context, email, username, code string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("verification code issued",
		slog.String("email", email),
		slog.String("code", code))
	return nil
}

var _ Notifier = LogNotifier{}
