package template

import (
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/jwalitptl/notify-api/internal/model"
)

// RenderError reports a template syntax or expansion failure for one
// template key.
type RenderError struct {
	TemplateKey string
	Cause       error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("failed to render template %q: %v", e.TemplateKey, e.Cause)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// Renderer expands a template's subject, HTML and text bodies against a
// context map. Rendering is pure: no I/O, no shared state, so the same
// template and context always produce the same output and previews can run
// without a dispatch.
type Renderer struct {
	textFuncs texttemplate.FuncMap
	htmlFuncs htmltemplate.FuncMap
}

func NewRenderer() *Renderer {
	return &Renderer{
		textFuncs: sprig.TxtFuncMap(),
		htmlFuncs: sprig.FuncMap(),
	}
}

// Render expands all three bodies independently. Missing context keys come
// out as empty strings and never fail the render; malformed template source
// fails with a RenderError.
func (r *Renderer) Render(tmpl *model.EmailTemplate, contextData map[string]interface{}) (*model.RenderedEmail, error) {
	if contextData == nil {
		contextData = map[string]interface{}{}
	}

	subject, err := r.renderText(tmpl.Subject, contextData)
	if err != nil {
		return nil, &RenderError{TemplateKey: tmpl.Key, Cause: err}
	}

	text, err := r.renderText(tmpl.TextContent, contextData)
	if err != nil {
		return nil, &RenderError{TemplateKey: tmpl.Key, Cause: err}
	}

	html, err := r.renderHTML(tmpl.HTMLContent, contextData)
	if err != nil {
		return nil, &RenderError{TemplateKey: tmpl.Key, Cause: err}
	}

	return &model.RenderedEmail{
		Subject: subject,
		HTML:    html,
		Text:    text,
	}, nil
}

func (r *Renderer) renderText(src string, data map[string]interface{}) (string, error) {
	t, err := texttemplate.New("body").Funcs(r.textFuncs).Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return scrubMissing(buf.String()), nil
}

func (r *Renderer) renderHTML(src string, data map[string]interface{}) (string, error) {
	t, err := htmltemplate.New("body").Funcs(r.htmlFuncs).Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return scrubMissing(buf.String()), nil
}

// text/template prints "<no value>" for map keys absent from an untyped
// context even under missingkey=zero; callers expect empty strings.
// html/template emits the escaped form.
func scrubMissing(s string) string {
	s = strings.ReplaceAll(s, "<no value>", "")
	return strings.ReplaceAll(s, "&lt;no value&gt;", "")
}
