package smtp_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apascal07/mailroom/core/mail"
	"github.com/apascal07/mailroom/integration/email/smtp"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	validConfig := smtp.Config{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "user@example.com",
		Password: "password",
		TLSMode:  "starttls",
	}

	tests := []struct {
		name    string
		config  smtp.Config
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			config:  validConfig,
			wantErr: false,
		},
		{
			name: "valid config without credentials",
			config: func() smtp.Config {
				cfg := validConfig
				cfg.Username = ""
				cfg.Password = ""
				return cfg
			}(),
			wantErr: false,
		},
		{
			name: "empty host",
			config: func() smtp.Config {
				cfg := validConfig
				cfg.Host = ""
				return cfg
			}(),
			wantErr: true,
			errMsg:  "Host is required",
		},
		{
			name: "invalid port - zero",
			config: func() smtp.Config {
				cfg := validConfig
				cfg.Port = 0
				return cfg
			}(),
			wantErr: true,
			errMsg:  "Port must be between 1 and 65535",
		},
		{
			name: "invalid port - too high",
			config: func() smtp.Config {
				cfg := validConfig
				cfg.Port = 70000
				return cfg
			}(),
			wantErr: true,
			errMsg:  "Port must be between 1 and 65535",
		},
		{
			name: "username without password",
			config: func() smtp.Config {
				cfg := validConfig
				cfg.Password = ""
				return cfg
			}(),
			wantErr: true,
			errMsg:  "Username and Password must be set together",
		},
		{
			name: "password without username",
			config: func() smtp.Config {
				cfg := validConfig
				cfg.Username = ""
				return cfg
			}(),
			wantErr: true,
			errMsg:  "Username and Password must be set together",
		},
		{
			name: "invalid TLS mode",
			config: func() smtp.Config {
				cfg := validConfig
				cfg.TLSMode = "ssl"
				return cfg
			}(),
			wantErr: true,
			errMsg:  "TLSMode must be starttls, tls, or plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, err := smtp.New(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, mail.ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, client)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, client)
			}
		})
	}
}

func TestMustNew(t *testing.T) {
	t.Parallel()

	t.Run("panics on invalid config", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() {
			smtp.MustNew(smtp.Config{})
		})
	})

	t.Run("returns client on valid config", func(t *testing.T) {
		t.Parallel()

		client := smtp.MustNew(smtp.Config{
			Host:    "smtp.example.com",
			Port:    25,
			TLSMode: "plain",
		})
		assert.NotNil(t, client)
	})
}

func TestSend_PreconditionErrors(t *testing.T) {
	t.Parallel()

	client := smtp.MustNew(smtp.Config{
		Host:    "smtp.example.com",
		Port:    25,
		TLSMode: "plain",
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := client.Send(ctx, &mail.Payload{
			To:      []string{"user@example.com"},
			Message: mail.Message{From: "sender@example.com", Text: "hi"},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, mail.ErrFailedToSend)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, result)
	})

	t.Run("missing sender", func(t *testing.T) {
		t.Parallel()

		result, err := client.Send(context.Background(), &mail.Payload{
			To:      []string{"user@example.com"},
			Message: mail.Message{Text: "hi"},
		})
		require.ErrorIs(t, err, mail.ErrFailedToSend)
		assert.Nil(t, result)
	})

	t.Run("no recipients", func(t *testing.T) {
		t.Parallel()

		result, err := client.Send(context.Background(), &mail.Payload{
			Message: mail.Message{From: "sender@example.com", Text: "hi"},
		})
		require.ErrorIs(t, err, mail.ErrNoRecipients)
		assert.Nil(t, result)
	})
}
