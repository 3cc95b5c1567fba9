// Package mail renders and delivers transactional emails.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/mail"
	"time"

	"gobarber/pkg/domain"
	"gobarber/pkg/locale"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	TemplateCancellation = "cancellation"

	cancellationSubject = "Cancelamento de agendamento"
)

// Message is a rendered email ready for a Sender.
type Message struct {
	ToName    string
	ToAddress string
	Subject   string
	HTML      string
	Text      string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Renderer executes the embedded templates.
type Renderer struct {
	tpl *template.Template
	loc *time.Location
}

// NewRenderer parses the embedded templates. Dates are shown in loc.
func NewRenderer(loc *time.Location) (*Renderer, error) {
	tpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{tpl: tpl, loc: loc}, nil
}

type cancellationData struct {
	Provider string
	User     string
	Date     string
}

// Cancellation builds the provider-facing email for a canceled appointment.
func (r *Renderer) Cancellation(c domain.CancellationMail) (Message, error) {
	if _, err := mail.ParseAddress(c.ProviderEmail); err != nil {
		return Message{}, fmt.Errorf("provider email %q: %w", c.ProviderEmail, err)
	}
	html, err := r.render(TemplateCancellation, cancellationData{
		Provider: c.ProviderName,
		User:     c.UserName,
		Date:     locale.FormatDate(c.Date, r.loc),
	})
	if err != nil {
		return Message{}, err
	}
	text, err := HTMLToText(html)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ToName:    c.ProviderName,
		ToAddress: c.ProviderEmail,
		Subject:   cancellationSubject,
		HTML:      html,
		Text:      text,
	}, nil
}

func (r *Renderer) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tpl.ExecuteTemplate(&buf, name+".html", data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// JobCancellation is the queue job kind carrying a JSON domain.CancellationMail.
const JobCancellation = "cancellation_mail"

// Mailer renders and sends in one step.
type Mailer struct {
	renderer *Renderer
	sender   Sender
}

func NewMailer(renderer *Renderer, sender Sender) *Mailer {
	return &Mailer{renderer: renderer, sender: sender}
}

// SendCancellation notifies the provider that an appointment was canceled.
func (m *Mailer) SendCancellation(ctx context.Context, c domain.CancellationMail) error {
	msg, err := m.renderer.Cancellation(c)
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, msg)
}
