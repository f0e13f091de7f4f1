package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/213020aumc/matcha/internal/infra/config"
	"github.com/213020aumc/matcha/internal/infra/logger"
)

// Recipient is an addressable mailbox.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Message is a rendered email ready for delivery.
type Message struct {
	From     Recipient   `json:"from"`
	To       []Recipient `json:"to"`
	Subject  string      `json:"subject"`
	HTML     string      `json:"html,omitempty"`
	Text     string      `json:"text,omitempty"`
	Category string      `json:"category,omitempty"`
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// MailtrapSender posts messages to the Mailtrap send API.
type MailtrapSender struct {
	url    string
	token  string
	client *http.Client
}

// NewMailtrapSender builds a sender bounded by cfg.Timeout.
func NewMailtrapSender(cfg config.MailSettings) (*MailtrapSender, error) {
	if cfg.APIURL == "" || cfg.APIToken == "" {
		return nil, fmt.Errorf("mail: mailtrap provider requires api_url and api_token")
	}
	return &MailtrapSender{
		url:    cfg.APIURL,
		token:  cfg.APIToken,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (m *MailtrapSender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("mailtrap API returned status: %d", resp.StatusCode)
	}
	return nil
}

// LogSender writes a one-line summary of each message instead of delivering it.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{logger: log}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	to := make([]string, 0, len(msg.To))
	for _, r := range msg.To {
		to = append(to, logger.MaskEmail(r.Email))
	}
	s.logger.Info("Email suppressed by log provider",
		append(logger.Fields(ctx),
			zap.Strings("to", to),
			zap.String("subject", msg.Subject),
			zap.String("category", msg.Category),
		)...,
	)
	return nil
}

// NewSender selects the delivery backend named by cfg.Provider.
func NewSender(cfg config.MailSettings, log *zap.Logger) (Sender, error) {
	switch cfg.Provider {
	case "mailtrap":
		return NewMailtrapSender(cfg)
	case "log", "":
		return NewLogSender(log), nil
	default:
		return nil, fmt.Errorf("mail: unsupported provider %q", cfg.Provider)
	}
}
