package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

const (
	TemplateWelcome          = "welcome"
	TemplateOrderConfirmed   = "order_confirmed"
	TemplateBookingConfirmed = "booking_confirmed"
	TemplateTicketConfirmed  = "ticket_confirmed"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("email").Funcs(template.FuncMap{
	"money": FormatMoney,
}).ParseFS(templateFS, "templates/*.html"))

var subjects = map[string]string{
	TemplateWelcome:          "Welcome to Frost Club",
	TemplateOrderConfirmed:   "Your Frost Club order is confirmed",
	TemplateBookingConfirmed: "Your private session is booked",
	TemplateTicketConfirmed:  "Your event tickets",
}

// Render returns the subject and HTML body of a named template. A "subject"
// key in data overrides the default subject.
func Render(templateName string, data map[string]any) (string, string, error) {
	subject, ok := subjects[templateName]
	if !ok {
		return "", "", fmt.Errorf("email: unknown template %q", templateName)
	}
	if custom, ok := data["subject"].(string); ok && custom != "" {
		subject = custom
	}

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, templateName+".html", data); err != nil {
		return "", "", fmt.Errorf("email: render %s: %w", templateName, err)
	}
	return subject, body.String(), nil
}

// FormatMoney renders minor units as "12.34 USD". Numbers decoded from JSON
// arrive as float64.
func FormatMoney(amount any, currency any) string {
	var cents int64
	switch v := amount.(type) {
	case int64:
		cents = v
	case int:
		cents = int64(v)
	case float64:
		cents = int64(v)
	}
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	code, _ := currency.(string)
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, strings.ToUpper(code))
}
