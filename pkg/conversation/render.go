// Copyright 2024-2026 Aiku AI

package conversation

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/aiku/threadtag/pkg/conversation/htmlfmt"
)

// Default notification templates.
const (
	DefaultSubjectPrefix = "[ATS] : "
	DefaultSubject       = "You were tagged in a {{.Kind}}"
	DefaultBody          = `<p>You were tagged in a {{.Kind}}: {{.Content}}</p>` +
		`{{if .RecordURL}}<p><a href='{{html .RecordURL}}'>Click here</a> to view the related record.</p>{{end}}`
)

// RenderConfig holds the notification templates.
type RenderConfig struct {
	SubjectPrefix string
	// Subject and Body are text/template sources executed with
	// RenderParams. Body must produce HTML.
	Subject string
	Body    string
	// RecordURL is a text/template source executed with the ContentItem to
	// link back to its scope. Empty disables the link.
	RecordURL string
}

// RenderParams is the data passed to the subject and body templates.
type RenderParams struct {
	Recipient Identity
	Item      ContentItem
	// Kind is "post" or "reply".
	Kind string
	// Content is the item body rendered as HTML.
	Content   string
	RecordURL string
}

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
	HTML    bool
}

// Renderer turns notification events into messages.
type Renderer struct {
	prefix    string
	subject   *template.Template
	body      *template.Template
	recordURL *template.Template
}

// NewRenderer compiles the templates in cfg, using the defaults for empty
// subject and body.
func NewRenderer(cfg RenderConfig) (*Renderer, error) {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Body == "" {
		cfg.Body = DefaultBody
	}
	r := &Renderer{prefix: cfg.SubjectPrefix}
	var err error
	if r.subject, err = template.New("subject").Parse(cfg.Subject); err != nil {
		return nil, fmt.Errorf("failed to parse subject template: %w", err)
	}
	if r.body, err = template.New("body").Parse(cfg.Body); err != nil {
		return nil, fmt.Errorf("failed to parse body template: %w", err)
	}
	if cfg.RecordURL != "" {
		if r.recordURL, err = template.New("record_url").Parse(cfg.RecordURL); err != nil {
			return nil, fmt.Errorf("failed to parse record URL template: %w", err)
		}
	}
	return r, nil
}

// MustNewRenderer is like NewRenderer but panics on invalid templates.
func MustNewRenderer(cfg RenderConfig) *Renderer {
	r, err := NewRenderer(cfg)
	if err != nil {
		panic(err)
	}
	return r
}

// Render builds the message for ev. Mentions for which highlight returns true
// are emphasised in the body.
func (r *Renderer) Render(ev NotificationEvent, highlight func(name string) bool) (Message, error) {
	params := RenderParams{
		Recipient: ev.Recipient,
		Item:      ev.Source,
		Kind:      "post",
		Content:   htmlfmt.ParseWithOptions(ev.Source.Body, htmlfmt.Options{Mention: highlight}).HTML,
	}
	if ev.Source.IsReply() {
		params.Kind = "reply"
	}
	if r.recordURL != nil {
		var sb strings.Builder
		if err := r.recordURL.Execute(&sb, ev.Source); err != nil {
			return Message{}, fmt.Errorf("failed to render record URL: %w", err)
		}
		params.RecordURL = sb.String()
	}

	var subject, body strings.Builder
	if err := r.subject.Execute(&subject, params); err != nil {
		return Message{}, fmt.Errorf("failed to render subject: %w", err)
	}
	if err := r.body.Execute(&body, params); err != nil {
		return Message{}, fmt.Errorf("failed to render body: %w", err)
	}
	return Message{
		Subject: r.prefix + strings.TrimSpace(subject.String()),
		Body:    body.String(),
		HTML:    true,
	}, nil
}
