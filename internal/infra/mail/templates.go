package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/213020aumc/matcha/internal/core/port"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[port.NotificationKind]string{
	port.NotifyOTP:             "Your Verification Code",
	port.NotifyProfileActive:   "Congratulations! Your Profile is Active",
	port.NotifyProfileRejected: "Action Required: Profile Review Update",
}

// Renderer holds one parsed template set per notification kind.
type Renderer struct {
	templates map[port.NotificationKind]*template.Template
}

// NewRenderer parses the embedded base layout together with each kind's content block.
func NewRenderer() (*Renderer, error) {
	base, err := template.ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parse base template: %w", err)
	}

	templates := make(map[port.NotificationKind]*template.Template, len(subjects))
	for kind := range subjects {
		tmpl, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone base template: %w", err)
		}
		if _, err := tmpl.ParseFS(templateFS, "templates/"+string(kind)+".html"); err != nil {
			return nil, fmt.Errorf("parse %s template: %w", kind, err)
		}
		templates[kind] = tmpl
	}

	return &Renderer{templates: templates}, nil
}

// Render returns the subject and HTML body for kind.
func (r *Renderer) Render(kind port.NotificationKind, data map[string]any) (string, string, error) {
	tmpl, ok := r.templates[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown notification kind %q", kind)
	}

	subject := subjects[kind]
	data["Subject"] = subject

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		return "", "", fmt.Errorf("execute %s template: %w", kind, err)
	}
	return subject, buf.String(), nil
}
