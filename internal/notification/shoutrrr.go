package notification

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/estoca-ai/estoca-worker/internal/errors"
)

const defaultProviderTimeout = 30 * time.Second

// sender is the subset of shoutrrr's service router used for delivery.
type sender interface {
	Send(message string, params *types.Params) []error
}

// ShoutrrrProvider forwards notifications to shoutrrr service URLs
// (ntfy, telegram, discord, ...).
type ShoutrrrProvider struct {
	name    string
	enabled bool
	urls    []string
	timeout time.Duration

	initOnce sync.Once
	sender   sender
	initErr  error
}

// NewShoutrrrProvider creates a provider. A non-positive timeout uses the default.
func NewShoutrrrProvider(name string, enabled bool, urls []string, timeout time.Duration) *ShoutrrrProvider {
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &ShoutrrrProvider{
		name:    name,
		enabled: enabled,
		urls:    append([]string(nil), urls...),
		timeout: timeout,
	}
}

// Name returns the provider name.
func (p *ShoutrrrProvider) Name() string { return p.name }

// ValidateConfig checks every URL is understood by shoutrrr.
func (p *ShoutrrrProvider) ValidateConfig() error {
	if !p.enabled {
		return nil
	}
	if len(p.urls) == 0 {
		return errors.Newf("provider %s has no URLs", p.name).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	for _, u := range p.urls {
		if _, err := shoutrrr.CreateSender(u); err != nil {
			return errors.New(err).
				Component("notification").
				Category(errors.CategoryConfiguration).
				Context("provider", p.name).
				Context("scheme", schemeOf(u)).
				Build()
		}
	}
	return nil
}

func (p *ShoutrrrProvider) init() error {
	p.initOnce.Do(func() {
		if p.sender != nil {
			return
		}
		s, err := shoutrrr.CreateSender(p.urls...)
		if err != nil {
			p.initErr = err
			return
		}
		p.sender = s
	})
	return p.initErr
}

// Send delivers n to every URL. It returns when all services answered,
// the timeout expired or ctx was cancelled.
func (p *ShoutrrrProvider) Send(ctx context.Context, n *Notification) error {
	if !p.enabled {
		return nil
	}
	if err := p.init(); err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("provider", p.name).
			Build()
	}

	params := types.Params{}
	if n.Title != "" {
		params["title"] = n.Title
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan []error, 1)
	go func() {
		done <- p.sender.Send(n.Body, &params)
	}()

	select {
	case errs := <-done:
		if err := errors.Join(errs...); err != nil {
			return errors.New(err).
				Component("notification").
				Category(errors.CategoryNetwork).
				Context("provider", p.name).
				Build()
		}
		return nil
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component("notification").
			Category(errors.CategoryNetwork).
			Context("provider", p.name).
			Build()
	}
}

func schemeOf(raw string) string {
	if i := strings.Index(raw, "://"); i > 0 {
		return raw[:i]
	}
	return "unknown"
}
