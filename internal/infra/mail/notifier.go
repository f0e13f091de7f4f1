// Package mail renders transactional emails and delivers them through a pluggable sender.
package mail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
	"github.com/213020aumc/matcha/internal/infra/config"
	"github.com/213020aumc/matcha/internal/infra/logger"
)

// TemplateNotifier renders a template with the current settings and hands it to a Sender.
type TemplateNotifier struct {
	renderer  *Renderer
	sender    Sender
	settings  port.SettingsProvider
	sanitizer port.TextSanitizer
	from      Recipient
}

// NewTemplateNotifier wires the renderer to sender. Settings are read on every call.
func NewTemplateNotifier(renderer *Renderer, sender Sender, settings port.SettingsProvider, sanitizer port.TextSanitizer, cfg config.MailSettings) *TemplateNotifier {
	return &TemplateNotifier{
		renderer:  renderer,
		sender:    sender,
		settings:  settings,
		sanitizer: sanitizer,
		from:      Recipient{Email: cfg.FromEmail, Name: cfg.FromName},
	}
}

func (n *TemplateNotifier) Notify(ctx context.Context, address string, kind port.NotificationKind, data map[string]string) error {
	businessName := n.settings.Get(ctx, domain.SettingBusinessName, n.from.Name)

	view := map[string]any{
		"BusinessName":   businessName,
		"FooterText":     n.settings.Get(ctx, domain.SettingMailFooter, "Best of Luck, Team "+businessName),
		"LogoPath":       n.settings.Get(ctx, domain.SettingLogoPath, ""),
		"PolicyLink":     n.settings.Get(ctx, domain.SettingPolicyLink, ""),
		"SocialFacebook": n.settings.Get(ctx, domain.SettingSocialFacebook, ""),
		"SocialX":        n.settings.Get(ctx, domain.SettingSocialX, ""),
		"FirstName":      "User",
	}
	for k, v := range data {
		view[k] = v
	}

	subject, html, err := n.renderer.Render(kind, view)
	if err != nil {
		return err
	}

	return n.sender.Send(ctx, Message{
		From:     Recipient{Email: n.from.Email, Name: businessName},
		To:       []Recipient{{Email: address}},
		Subject:  subject,
		HTML:     html,
		Text:     n.sanitizer.Sanitize(html),
		Category: string(kind),
	})
}

var _ port.Notifier = (*TemplateNotifier)(nil)

// ErrQueueFull is returned when the async notifier cannot accept more work.
var ErrQueueFull = errors.New("mail: notification queue is full")

type job struct {
	ctx     context.Context
	address string
	kind    port.NotificationKind
	data    map[string]string
}

// AsyncNotifier hands notifications to a background worker so callers never wait on delivery.
type AsyncNotifier struct {
	next    port.Notifier
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

// NewAsyncNotifier starts one worker draining a queue of size queueSize.
func NewAsyncNotifier(next port.Notifier, queueSize int, timeout time.Duration, log *zap.Logger) *AsyncNotifier {
	if queueSize <= 0 {
		queueSize = 1
	}
	n := &AsyncNotifier{
		next:    next,
		logger:  log,
		timeout: timeout,
		queue:   make(chan job, queueSize),
	}
	n.wg.Add(1)
	go n.run()
	return n
}

func (n *AsyncNotifier) Notify(ctx context.Context, address string, kind port.NotificationKind, data map[string]string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return fmt.Errorf("mail: notifier closed")
	}

	select {
	case n.queue <- job{ctx: context.WithoutCancel(ctx), address: address, kind: kind, data: data}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (n *AsyncNotifier) run() {
	defer n.wg.Done()
	for j := range n.queue {
		n.deliver(j)
	}
}

func (n *AsyncNotifier) deliver(j job) {
	ctx := j.ctx
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	if err := n.next.Notify(ctx, j.address, j.kind, j.data); err != nil {
		n.logger.Warn("Notification delivery failed",
			append(logger.Fields(j.ctx),
				zap.String("kind", string(j.kind)),
				zap.String("to", logger.MaskEmail(j.address)),
				zap.Error(err),
			)...,
		)
	}
}

// Close stops accepting work and waits for queued notifications until ctx ends.
func (n *AsyncNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ port.Notifier = (*AsyncNotifier)(nil)
