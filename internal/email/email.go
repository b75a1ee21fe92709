// Package email entrega los correos de acción (verificación, reset) del backend local.
package email

import (
	"bytes"
	"context"
	"fmt"
	htmltpl "html/template"
	"sync"
	texttpl "text/template"

	"github.com/dropDatabas3/hellodoc/internal/logger"
	"go.uber.org/zap"
)

// Message es un correo listo para enviar.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender entrega un Message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Kind de correo de acción.
type Kind string

const (
	KindVerifyEmail   Kind = "verify_email"
	KindResetPassword Kind = "reset_password"
	KindEmailChanged  Kind = "email_changed"
)

// ActionData alimenta los templates.
type ActionData struct {
	AppName string
	Email   string
	Link    string
	Code    string
}

type tpl struct {
	subject string
	text    *texttpl.Template
	html    *htmltpl.Template
}

var templates = map[Kind]tpl{
	KindVerifyEmail: {
		subject: "Verify your email for {{.AppName}}",
		text:    texttpl.Must(texttpl.New("t").Parse("Follow this link to verify {{.Email}}:\n\n{{.Link}}\n\nCode: {{.Code}}\n")),
		html:    htmltpl.Must(htmltpl.New("h").Parse(`<p>Follow this link to verify {{.Email}}:</p><p><a href="{{.Link}}">{{.Link}}</a></p>`)),
	},
	KindResetPassword: {
		subject: "Reset your password for {{.AppName}}",
		text:    texttpl.Must(texttpl.New("t").Parse("Follow this link to reset the password of {{.Email}}:\n\n{{.Link}}\n\nCode: {{.Code}}\n")),
		html:    htmltpl.Must(htmltpl.New("h").Parse(`<p>Follow this link to reset the password of {{.Email}}:</p><p><a href="{{.Link}}">{{.Link}}</a></p>`)),
	},
	KindEmailChanged: {
		subject: "Your {{.AppName}} sign-in email was changed",
		text:    texttpl.Must(texttpl.New("t").Parse("The sign-in email of your account is now {{.Email}}.\n")),
		html:    htmltpl.Must(htmltpl.New("h").Parse(`<p>The sign-in email of your account is now {{.Email}}.</p>`)),
	},
}

// Render arma el Message para k.
func Render(k Kind, to string, d ActionData) (Message, error) {
	t, ok := templates[k]
	if !ok {
		return Message{}, fmt.Errorf("email: unknown template %q", k)
	}
	var subj, txt, html bytes.Buffer
	if err := texttpl.Must(texttpl.New("s").Parse(t.subject)).Execute(&subj, d); err != nil {
		return Message{}, fmt.Errorf("email: subject: %w", err)
	}
	if err := t.text.Execute(&txt, d); err != nil {
		return Message{}, fmt.Errorf("email: text: %w", err)
	}
	if err := t.html.Execute(&html, d); err != nil {
		return Message{}, fmt.Errorf("email: html: %w", err)
	}
	return Message{To: to, Subject: subj.String(), Text: txt.String(), HTML: html.String()}, nil
}

// LogSender sólo loguea (dev sin SMTP).
type LogSender struct{ Log *zap.Logger }

func (s LogSender) Send(_ context.Context, m Message) error {
	logger.Or(s.Log, "email").Info("email not delivered (log sender)",
		zap.String("to", m.To), zap.String("subject", m.Subject))
	return nil
}

// Outbox guarda los mensajes en memoria. Útil en tests y en la CLI.
type Outbox struct {
	mu   sync.Mutex
	msgs []Message
}

func (o *Outbox) Send(_ context.Context, m Message) error {
	o.mu.Lock()
	o.msgs = append(o.msgs, m)
	o.mu.Unlock()
	return nil
}

// Messages devuelve una copia de lo enviado.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.msgs...)
}

// Last devuelve el último mensaje enviado a to.
func (o *Outbox) Last(to string) (Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.msgs) - 1; i >= 0; i-- {
		if o.msgs[i].To == to {
			return o.msgs[i], true
		}
	}
	return Message{}, false
}
