package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var subjects = map[string]string{
	"payment_reminder": "Tu plan vence pronto",
	"payment_overdue":  "Tu pago está vencido",
	"plan_downgraded":  "Tu plan cambió a Gratuito",
	"slot_available":   "¡Hay un lugar disponible para tu negocio!",
}

// Render executes the named template. A "subject" entry in data overrides the
// default subject of the template.
func Render(templateName string, data map[string]any) (string, string, error) {
	tmpl := templates.Lookup(templateName + ".html")
	if tmpl == nil {
		return "", "", fmt.Errorf("unknown email template %q", templateName)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("failed to execute template: %w", err)
	}

	subject := subjects[templateName]
	if subj, ok := data["subject"].(string); ok && subj != "" {
		subject = subj
	}
	if subject == "" {
		subject = "Aviso del Directorio"
	}
	return subject, body.String(), nil
}
