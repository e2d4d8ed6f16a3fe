package email

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"communityevents/internal/domain"
)

//go:embed templates/*
var templateFS embed.FS

var funcs = map[string]any{
	"date": func(t time.Time) string { return t.Format("02/01/2006 15:04") },
}

// Every notification kind ships three files: <kind>_subject.txt, <kind>.txt and <kind>.html.
var (
	textTemplates = texttemplate.Must(texttemplate.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.txt"))
	htmlTemplates = htmltemplate.Must(htmltemplate.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
)

// templateRenderer implements domain.EmailTemplateRenderer over the templates parsed at startup.
type templateRenderer struct{}

// NewTemplateRenderer returns an EmailTemplateRenderer backed by the embedded templates folder.
func NewTemplateRenderer() domain.EmailTemplateRenderer {
	return templateRenderer{}
}

// Render executes the named template (e.g. "promotion") with data and returns subject, html, and text bodies.
func (templateRenderer) Render(name string, data any) (subject, htmlBody, textBody string, err error) {
	if subject, err = execText(name+"_subject.txt", data); err != nil {
		return "", "", "", fmt.Errorf("render subject: %w", err)
	}
	if textBody, err = execText(name+".txt", data); err != nil {
		return "", "", "", fmt.Errorf("render text: %w", err)
	}
	t := htmlTemplates.Lookup(name + ".html")
	if t == nil {
		return "", "", "", fmt.Errorf("render html: template %q not found", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", "", "", fmt.Errorf("render html: %w", err)
	}
	return strings.Join(strings.Fields(subject), " "), buf.String(), textBody, nil
}

func execText(file string, data any) (string, error) {
	t := textTemplates.Lookup(file)
	if t == nil {
		return "", fmt.Errorf("template %q not found", file)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
