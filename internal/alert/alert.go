// Package alert sends recovery notification emails.
// An Alerter can be registered as an engine recovery hook so operators
// hear about every automatic restart and what triggered it.
package alert

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type Alerter struct {
	to   string
	send func(*mail.SGMailV3) (int, error)
}

// New builds an Alerter from FROM_NAME, FROM_ADDRESS and EMAIL_API_KEY
// environment variables. to is the operator address.
func New(to string) *Alerter {
	client := sendgrid.NewSendClient(os.Getenv("EMAIL_API_KEY"))
	return &Alerter{
		to: to,
		send: func(email *mail.SGMailV3) (int, error) {
			response, err := client.Send(email)
			if err != nil {
				return 0, err
			}
			return response.StatusCode, nil
		},
	}
}

// NotifyRecovery emails the list of health issues that triggered an
// automatic restart.
func (a *Alerter) NotifyRecovery(issues []string) error {
	subject := "Solver auto-recovery triggered"
	body := fmt.Sprintf(
		"The solver restarted itself at %s.\n\nDetected issues:\n- %s\n",
		time.Now().UTC().Format(time.RFC3339),
		strings.Join(issues, "\n- "),
	)

	fromName := os.Getenv("FROM_NAME")
	fromAddress := os.Getenv("FROM_ADDRESS")
	from := mail.NewEmail(fromName, fromAddress)
	toEmail := mail.NewEmail("", a.to)
	email := mail.NewSingleEmail(from, subject, toEmail, body, body)

	status, err := a.send(email)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	if status >= 400 {
		return fmt.Errorf("sendgrid error: status %d", status)
	}

	log.Printf("Recovery alert sent to %s (status: %d)", a.to, status)
	return nil
}

// Hook adapts NotifyRecovery to the engine recovery callback. Send
// failures are logged and never block recovery.
func (a *Alerter) Hook() func(issues []string) {
	return func(issues []string) {
		if err := a.NotifyRecovery(issues); err != nil {
			log.Printf("Failed to send recovery alert: %v", err)
		}
	}
}
