package mail

import (
	"context"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/Masterminds/sprig/v3"
)

// TemplateDefinition is a stored template: each non-empty field is a template
// source rendered with the message's template data.
type TemplateDefinition struct {
	Name    string `bson:"_id" json:"name"`
	Subject string `bson:"subject,omitempty" json:"subject,omitempty"`
	HTML    string `bson:"html,omitempty" json:"html,omitempty"`
	Text    string `bson:"text,omitempty" json:"text,omitempty"`
}

// TemplateSource fetches a template definition by name.
type TemplateSource interface {
	Template(ctx context.Context, name string) (*TemplateDefinition, error)
}

// Renderer expands a message's template reference into rendered mail fields.
// Subject and text bodies are rendered as plain text templates, the html body
// as an auto-escaping HTML template, both with the sprig function map.
type Renderer struct {
	source TemplateSource
}

// NewRenderer creates a template renderer over the given source.
func NewRenderer(source TemplateSource) (*Renderer, error) {
	if source == nil {
		return nil, ErrTemplateSourceNil
	}
	return &Renderer{source: source}, nil
}

// Apply renders the referenced template and merges the result into a copy of
// the message. Fields explicitly set on the message take precedence over
// rendered fields. Messages without a template reference pass through
// unchanged.
func (r *Renderer) Apply(ctx context.Context, msg Message) (Message, error) {
	if msg.Template == nil {
		return msg, nil
	}
	if msg.Template.Name == "" {
		return Message{}, ErrMissingTemplateName
	}

	def, err := r.source.Template(ctx, msg.Template.Name)
	if err != nil {
		return Message{}, err
	}

	data := msg.Template.Data

	if msg.Subject == "" && def.Subject != "" {
		subject, err := renderText(def.Name+":subject", def.Subject, data)
		if err != nil {
			return Message{}, err
		}
		msg.Subject = subject
	}

	if msg.Text == "" && def.Text != "" {
		text, err := renderText(def.Name+":text", def.Text, data)
		if err != nil {
			return Message{}, err
		}
		msg.Text = text
	}

	if msg.HTML == "" && def.HTML != "" {
		html, err := renderHTML(def.Name+":html", def.HTML, data)
		if err != nil {
			return Message{}, err
		}
		msg.HTML = html
	}

	return msg, nil
}

func renderText(name, source string, data map[string]any) (string, error) {
	tpl, err := texttemplate.New(name).Funcs(sprig.TxtFuncMap()).Parse(source)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", name, err)
	}

	var buf strings.Builder
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", name, err)
	}
	return buf.String(), nil
}

func renderHTML(name, source string, data map[string]any) (string, error) {
	tpl, err := htmltemplate.New(name).Funcs(sprig.HtmlFuncMap()).Parse(source)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", name, err)
	}

	var buf strings.Builder
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", name, err)
	}
	return buf.String(), nil
}
