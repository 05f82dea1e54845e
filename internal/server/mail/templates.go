package mail

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Credentials are shown only in the account-created mail.
type Credentials struct {
	Email    string
	Password string
}

// templateData fills templates/email.html.
type templateData struct {
	Title       string
	Description string
	ButtonText  string
	FirstName   string
	URL         string
	AppName     string
	Credentials *Credentials
}

func parseTemplates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/email.html")
}
