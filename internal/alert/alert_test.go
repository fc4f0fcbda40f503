package alert

import (
	"testing"

	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyRecovery(t *testing.T) {
	t.Run("sends email with issues in body", func(t *testing.T) {
		var sent *mail.SGMailV3
		a := &Alerter{
			to: "ops@example.com",
			send: func(email *mail.SGMailV3) (int, error) {
				sent = email
				return 202, nil
			},
		}

		err := a.NotifyRecovery([]string{"Circuit breaker is OPEN", "No available workers"})
		require.NoError(t, err)
		require.NotNil(t, sent)

		require.Len(t, sent.Content, 2)
		assert.Contains(t, sent.Content[0].Value, "Circuit breaker is OPEN")
		assert.Contains(t, sent.Content[0].Value, "No available workers")

		require.Len(t, sent.Personalizations, 1)
		require.Len(t, sent.Personalizations[0].To, 1)
		assert.Equal(t, "ops@example.com", sent.Personalizations[0].To[0].Address)
	})

	t.Run("sendgrid rejection is an error", func(t *testing.T) {
		a := &Alerter{
			to: "ops@example.com",
			send: func(email *mail.SGMailV3) (int, error) {
				return 401, nil
			},
		}

		err := a.NotifyRecovery([]string{"Circuit breaker is OPEN"})
		assert.ErrorContains(t, err, "status 401")
	})

	t.Run("transport failure is wrapped", func(t *testing.T) {
		a := &Alerter{
			to: "ops@example.com",
			send: func(email *mail.SGMailV3) (int, error) {
				return 0, assert.AnError
			},
		}

		err := a.NotifyRecovery([]string{"Circuit breaker is OPEN"})
		assert.ErrorContains(t, err, "failed to send alert")
	})
}

func TestHook(t *testing.T) {
	t.Run("never panics on send failure", func(t *testing.T) {
		a := &Alerter{
			to: "ops@example.com",
			send: func(email *mail.SGMailV3) (int, error) {
				return 0, assert.AnError
			},
		}

		hook := a.Hook()
		assert.NotPanics(t, func() {
			hook([]string{"No available workers"})
		})
	})
}
