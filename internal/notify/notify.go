package notify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wayfarer-tours/apiserver/config"
	"github.com/wayfarer-tours/apiserver/types"
)

// Template names understood by the mail worker consuming the job queue.
const (
	templateWelcome       = "welcome"
	templatePasswordReset = "password-reset"
)

const defaultSendTimeout = 5 * time.Second

// EmailJob is the payload published for every outbound email. A separate
// worker renders and delivers it; this service only produces.
type EmailJob struct {
	Template string `json:"template"`
	To       string `json:"to"`
	Name     string `json:"name"`
	Subject  string `json:"subject"`
	URL      string `json:"url"`
}

// Sender delivers account notifications. Sends are fire-and-await: a single
// attempt bounded by the configured timeout, with failures surfaced to the
// caller.
type Sender interface {
	SendWelcome(ctx context.Context, user types.User, loginURL string) error
	SendPasswordReset(ctx context.Context, user types.User, resetURL string) error
}

// Backend publishes an email job to the named channel and returns a
// broker-assigned or generated message ID.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// Mailer publishes email jobs to a broker backend.
type Mailer struct {
	backend     Backend
	channel     string
	sendTimeout time.Duration
}

// NewMailer constructs a Mailer over the given backend.
func NewMailer(backend Backend, channel string, sendTimeout time.Duration) *Mailer {
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	return &Mailer{
		backend:     backend,
		channel:     channel,
		sendTimeout: sendTimeout,
	}
}

// New constructs a Mailer with the backend selected by config.
func New(ctx context.Context, cfg config.NotifyConfig) (*Mailer, error) {
	var (
		backend Backend
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "rabbitmq":
		backend, err = NewRabbitMQBackend(cfg.RabbitMQ)
	case "pubsub":
		backend, err = NewPubSubBackend(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown notify backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewMailer(backend, cfg.Channel, cfg.SendTimeout), nil
}

// SendWelcome queues the post-signup greeting email.
func (m *Mailer) SendWelcome(ctx context.Context, user types.User, loginURL string) error {
	return m.publish(ctx, EmailJob{
		Template: templateWelcome,
		To:       user.Email,
		Name:     user.Name,
		Subject:  "Welcome to Wayfarer Tours!",
		URL:      loginURL,
	})
}

// SendPasswordReset queues the reset email carrying the one-time URL.
func (m *Mailer) SendPasswordReset(ctx context.Context, user types.User, resetURL string) error {
	return m.publish(ctx, EmailJob{
		Template: templatePasswordReset,
		To:       user.Email,
		Name:     user.Name,
		Subject:  "Your password reset token (valid for 10 minutes)",
		URL:      resetURL,
	})
}

// Close closes the underlying backend.
func (m *Mailer) Close() error {
	return m.backend.Close()
}

func (m *Mailer) publish(ctx context.Context, job EmailJob) error {
	if strings.TrimSpace(job.To) == "" {
		return errors.New("email job recipient is required")
	}

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	defer cancel()

	attrs := map[string]string{"template": job.Template}
	if _, err := m.backend.Publish(ctx, m.channel, data, attrs); err != nil {
		return fmt.Errorf("publish email job: %w", err)
	}
	return nil
}

func newMessageID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}
