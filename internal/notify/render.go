package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/iliyamo/easybook/internal/model"
)

// Message is a rendered notification ready for a Sink.
type Message struct {
	To      string
	Name    string
	Subject string
	Text    string
	HTML    string
}

type templateSet struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

const timeLayout = "Mon 2 Jan 2006, 15:04 MST"

var funcs = map[string]any{
	"when": func(ev Event) string { return ev.StartsAt.UTC().Format(timeLayout) },
	"greeting": func(name string) string {
		if strings.TrimSpace(name) == "" {
			return "Hello"
		}
		return "Hello " + name
	},
}

const htmlLayout = `<!doctype html><html><body style="font-family:sans-serif">
<p>{{greeting .Name}},</p>
<p>%s</p>
{{if .AppointmentID}}<p style="color:#666">Appointment {{.AppointmentID}}</p>{{end}}
</body></html>`

func newSet(kind model.NotificationKind, subject, body string) templateSet {
	name := string(kind)
	return templateSet{
		subject: texttemplate.Must(texttemplate.New(name + ".subject").Funcs(funcs).Parse(subject)),
		text:    texttemplate.Must(texttemplate.New(name + ".txt").Funcs(funcs).Parse("{{greeting .Name}},\n\n" + body + "\n")),
		html:    htmltemplate.Must(htmltemplate.New(name + ".html").Funcs(funcs).Parse(fmt.Sprintf(htmlLayout, body))),
	}
}

var templates = map[model.NotificationKind]templateSet{
	model.KindAppointmentCreated: newSet(model.KindAppointmentCreated,
		`Booking received: {{.ServiceName}}`,
		`Your booking for {{.ServiceName}} on {{when .}} has been received. Complete the payment of {{.Currency}} {{.Amount}} to confirm it.`),
	model.KindAppointmentConfirmed: newSet(model.KindAppointmentConfirmed,
		`Appointment confirmed: {{.ServiceName}}`,
		`Your payment of {{.Currency}} {{.Amount}} was received and your appointment for {{.ServiceName}} on {{when .}} is confirmed.{{if .Reference}} Payment reference: {{.Reference}}.{{end}}`),
	model.KindAppointmentUpdated: newSet(model.KindAppointmentUpdated,
		`Appointment updated: {{.ServiceName}}`,
		`Your appointment for {{.ServiceName}} on {{when .}} has been updated.`),
	model.KindAppointmentCancelled: newSet(model.KindAppointmentCancelled,
		`Appointment cancelled: {{.ServiceName}}`,
		`Your appointment for {{.ServiceName}} on {{when .}} has been cancelled.{{if .Reason}} Reason: {{.Reason}}.{{end}}`),
	model.KindAppointmentReminder: newSet(model.KindAppointmentReminder,
		`Reminder: {{.ServiceName}} on {{when .}}`,
		`This is a reminder of your appointment for {{.ServiceName}} on {{when .}}.`),
	model.KindPaymentFailed: newSet(model.KindPaymentFailed,
		`Payment failed: {{.ServiceName}}`,
		`We could not complete your payment of {{.Currency}} {{.Amount}} for {{.ServiceName}} on {{when .}}.{{if .Reason}} Reason: {{.Reason}}.{{end}}`),
	model.KindPaymentRefunded: newSet(model.KindPaymentRefunded,
		`Refund issued: {{.ServiceName}}`,
		`Your payment of {{.Currency}} {{.Amount}} for {{.ServiceName}} has been refunded.{{if .Reason}} Reason: {{.Reason}}.{{end}}`),
}

// Render produces the message for ev.  Unknown kinds are an error.
func Render(ev Event) (Message, error) {
	set, ok := templates[ev.Kind]
	if !ok {
		return Message{}, fmt.Errorf("no template for notification kind %q", ev.Kind)
	}
	var subject, text, html bytes.Buffer
	if err := set.subject.Execute(&subject, ev); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", ev.Kind, err)
	}
	if err := set.text.Execute(&text, ev); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", ev.Kind, err)
	}
	if err := set.html.Execute(&html, ev); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", ev.Kind, err)
	}
	return Message{
		To:      ev.Email,
		Name:    ev.Name,
		Subject: subject.String(),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
