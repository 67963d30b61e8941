// Copyright 2024-2026 Aiku AI

package conversation

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/threadtag/pkg/conversation/mention"
)

// DefaultConcurrency bounds the number of deliveries in flight per dispatch.
const DefaultConcurrency = 8

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Notifier Notifier
	// Renderer defaults to the built-in templates.
	Renderer *Renderer
	// Concurrency bounds parallel deliveries. Zero means DefaultConcurrency,
	// a negative value means unbounded.
	Concurrency int
	Metrics     *Metrics
	Log         zerolog.Logger
}

// Dispatcher turns the mentions of a persisted item into one notification per
// distinct recipient.
type Dispatcher struct {
	notifier    Notifier
	renderer    *Renderer
	concurrency int
	metrics     *Metrics
	log         zerolog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		notifier:    cfg.Notifier,
		renderer:    cfg.Renderer,
		concurrency: cfg.Concurrency,
		metrics:     cfg.Metrics,
		log:         cfg.Log.With().Str("component", "dispatcher").Logger(),
	}
	if d.renderer == nil {
		d.renderer = MustNewRenderer(RenderConfig{})
	}
	if d.concurrency == 0 {
		d.concurrency = DefaultConcurrency
	}
	if d.metrics == nil {
		d.metrics = NewMetrics(nil)
	}
	return d
}

// Recipients resolves the mentions in item's body against dir and returns the
// distinct identities in first-mention order. Unresolved names and
// identities without an address are dropped.
func (d *Dispatcher) Recipients(item *ContentItem, dir *Directory) []Identity {
	if item == nil {
		return nil
	}
	log := d.log.With().Str("item_id", item.ID).Logger()
	seen := make(map[string]struct{})
	var out []Identity
	for _, name := range mention.Names(item.Body) {
		ident, ok := dir.Resolve(name)
		if !ok {
			d.metrics.Mentions.WithLabelValues("unresolved").Inc()
			log.Debug().Str("name", name).Msg("Mention did not resolve to a known identity")
			continue
		}
		d.metrics.Mentions.WithLabelValues("resolved").Inc()
		key := ident.ID
		if key == "" {
			key = "address:" + ident.Address
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if matches := dir.Matches(name); len(matches) > 1 {
			log.Warn().
				Str("name", name).
				Int("matches", len(matches)).
				Str("recipient_id", ident.ID).
				Msg("Display name is ambiguous, notifying first match")
		}
		if ident.Address == "" {
			log.Warn().Str("recipient_id", ident.ID).Msg("Identity has no address, skipping notification")
			continue
		}
		out = append(out, ident)
	}
	return out
}

// Dispatch delivers one notification per recipient of item concurrently and
// returns the outcomes in recipient order. A failed delivery never affects
// the others. Dispatch does not return early when ctx is cancelled; each
// delivery sees ctx and decides for itself.
func (d *Dispatcher) Dispatch(ctx context.Context, item *ContentItem, dir *Directory) []DeliveryOutcome {
	recipients := d.Recipients(item, dir)
	if len(recipients) == 0 {
		return nil
	}
	highlight := func(name string) bool {
		_, ok := dir.Resolve(name)
		return ok
	}

	now := time.Now()
	outcomes := make([]DeliveryOutcome, len(recipients))
	var g errgroup.Group
	if d.concurrency > 0 {
		g.SetLimit(d.concurrency)
	}
	for i, recipient := range recipients {
		ev := NotificationEvent{Recipient: recipient, Source: *item, GeneratedAt: now}
		outcomes[i].Event = ev
		g.Go(func() error {
			outcomes[i].Err = d.deliver(ctx, ev, highlight)
			return nil
		})
	}
	_ = g.Wait()

	for _, outcome := range outcomes {
		log := d.log.With().
			Str("item_id", item.ID).
			Str("recipient_id", outcome.Event.Recipient.ID).
			Str("address", outcome.Event.Recipient.Address).
			Logger()
		if outcome.Err != nil {
			d.metrics.Deliveries.WithLabelValues("failed").Inc()
			log.Err(outcome.Err).Msg("Failed to deliver notification")
		} else {
			d.metrics.Deliveries.WithLabelValues("delivered").Inc()
			log.Info().Msg("Notification delivered")
		}
	}
	return outcomes
}

func (d *Dispatcher) deliver(ctx context.Context, ev NotificationEvent, highlight func(string) bool) error {
	wrap := func(err error) error {
		return &DeliveryError{RecipientID: ev.Recipient.ID, Address: ev.Recipient.Address, Err: err}
	}
	if d.notifier == nil {
		return wrap(errNoNotifier)
	}
	msg, err := d.renderer.Render(ev, highlight)
	if err != nil {
		return wrap(err)
	}
	if err = d.notifier.Send(ctx, ev.Recipient.Address, msg.Subject, msg.Body, msg.HTML); err != nil {
		return wrap(err)
	}
	return nil
}
