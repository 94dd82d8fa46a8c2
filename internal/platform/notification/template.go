package notification

import (
	"fmt"
	"strings"
	"sync"
)

const (
	TemplateCredentials    = "account-credentials"
	TemplateReadyForPickup = "ready-for-pickup"
	TemplateTest           = "test-email"
)

// Template is a plain-text email with {{key}} placeholders.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages email templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateCredentials,
			Name:    "Account Credentials",
			Subject: "Your {{system_name}} Account",
			Body: `Welcome to {{barangay_name}}!

Dear {{full_name}},

Your account in the {{system_name}} has been created.

Account Role: {{role}}

Your Login Credentials:
Username: {{username}}
Password: {{password}}

Please keep your password secure and do not share it with anyone. You can change your password after logging in.

You can access the system at: {{login_url}}

If you have any questions or need assistance, please contact the barangay office.

Best regards,
{{system_name}}

This is an automated message. Please do not reply to this email.`,
		},
		{
			ID:      TemplateReadyForPickup,
			Name:    "Ready for Pick-up",
			Subject: "Your document is Ready for Pick-up",
			Body: `Dear {{full_name}},

Your requested document is now Ready for Pick-up.

Reference No.: {{reference_number}}
Service: {{service_name}}

You may visit the Barangay Hall to claim your document. Please bring a valid ID.

Thank you.`,
		},
		{
			ID:      TemplateTest,
			Name:    "Test Email",
			Subject: "{{system_name}} test email",
			Body:    "This is a test message from the {{system_name}}. If you received it, outgoing email is configured correctly.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and replaces {{key}} placeholders with
// data. Keys present in the template but absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}
