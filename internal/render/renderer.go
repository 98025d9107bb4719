// Package render resolves notification content into the final subject and
// body handed to a provider.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/valyala/fasttemplate"

	"github.com/kursadbilgin/notifier/internal/domain"
)

const (
	startTag = "{{"
	endTag   = "}}"
)

// TemplateStore reads active templates. nameOrID is either the template
// name (unique per tenant) or its id.
type TemplateStore interface {
	GetActive(ctx context.Context, tenantID, nameOrID string) (*domain.Template, error)
}

// Content is the unrendered input: either a template reference or an inline
// subject/body, plus the variables to interpolate. A non-empty Channel must
// match the channel of a referenced template.
type Content struct {
	TenantID    string
	Channel     domain.Channel
	TemplateRef string
	Subject     string
	Body        string
	Variables   map[string]any
}

// ContentOf extracts renderable content from a notification.
func ContentOf(n *domain.Notification) Content {
	c := Content{
		TenantID:  n.TenantID,
		Channel:   n.Channel,
		Variables: n.Variables,
	}
	if n.TemplateRef != nil {
		c.TemplateRef = strings.TrimSpace(*n.TemplateRef)
	}
	if n.Subject != nil {
		c.Subject = *n.Subject
	}
	if n.Body != nil {
		c.Body = *n.Body
	}
	return c
}

// Rendered is the output of a successful render.
type Rendered struct {
	Subject string
	Body    string
}

// Error is returned for any render failure. It is never worth retrying:
// the same inputs produce the same failure.
type Error struct {
	TemplateRef string
	Reason      string
	Err         error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := "render failed"
	if e.TemplateRef != "" {
		msg += fmt.Sprintf(" for template %q", e.TemplateRef)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsRenderError reports whether err is, or wraps, a render Error.
func IsRenderError(err error) bool {
	var renderErr *Error
	return errors.As(err, &renderErr)
}

type Renderer struct {
	templates TemplateStore
}

func NewRenderer(templates TemplateStore) *Renderer {
	return &Renderer{templates: templates}
}

// Render resolves c into a subject and body. Unresolved placeholders, a
// missing or inactive template and an empty rendered body are errors.
func (r *Renderer) Render(ctx context.Context, c Content) (Rendered, error) {
	subject, body := c.Subject, c.Body

	if c.TemplateRef != "" {
		tpl, err := r.lookup(ctx, c.TenantID, c.TemplateRef)
		if err != nil {
			return Rendered{}, err
		}
		if c.Channel != "" && tpl.Channel != c.Channel {
			return Rendered{}, &Error{
				TemplateRef: c.TemplateRef,
				Reason:      fmt.Sprintf("template is for channel %q, not %q", tpl.Channel, c.Channel),
				Err:         domain.ErrValidation,
			}
		}
		subject = ""
		if tpl.Subject != nil {
			subject = *tpl.Subject
		}
		body = tpl.Body
	}

	renderedSubject, err := Interpolate(subject, c.Variables)
	if err != nil {
		return Rendered{}, &Error{TemplateRef: c.TemplateRef, Reason: "subject", Err: err}
	}
	renderedBody, err := Interpolate(body, c.Variables)
	if err != nil {
		return Rendered{}, &Error{TemplateRef: c.TemplateRef, Reason: "body", Err: err}
	}
	if strings.TrimSpace(renderedBody) == "" {
		return Rendered{}, &Error{TemplateRef: c.TemplateRef, Reason: "rendered body is empty"}
	}

	return Rendered{Subject: renderedSubject, Body: renderedBody}, nil
}

// Preview renders a stored template with caller-supplied sample variables.
func (r *Renderer) Preview(ctx context.Context, tenantID, ref string, vars map[string]any) (Rendered, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Rendered{}, &Error{Reason: "template reference is required", Err: domain.ErrValidation}
	}
	return r.Render(ctx, Content{TenantID: tenantID, TemplateRef: ref, Variables: vars})
}

func (r *Renderer) lookup(ctx context.Context, tenantID, ref string) (*domain.Template, error) {
	if r == nil || r.templates == nil {
		return nil, &Error{TemplateRef: ref, Reason: "template store is not configured"}
	}

	tpl, err := r.templates.GetActive(ctx, tenantID, ref)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &Error{TemplateRef: ref, Reason: "template not found or inactive", Err: err}
		}
		// Store failures are infrastructure errors, not render errors.
		return nil, fmt.Errorf("failed to load template %q: %w", ref, err)
	}
	if tpl == nil || !tpl.IsActive {
		return nil, &Error{TemplateRef: ref, Reason: "template not found or inactive", Err: domain.ErrNotFound}
	}
	return tpl, nil
}

// UnresolvedError lists placeholders that had no matching variable.
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	return "unresolved variables: " + strings.Join(e.Names, ", ")
}

// Interpolate replaces {{ name }} placeholders in text with values from vars.
// Whitespace inside the braces is ignored.
func Interpolate(text string, vars map[string]any) (string, error) {
	if !strings.Contains(text, startTag) {
		return text, nil
	}

	tpl, err := fasttemplate.NewTemplate(text, startTag, endTag)
	if err != nil {
		return "", fmt.Errorf("invalid template syntax: %w", err)
	}

	var missing []string
	seen := make(map[string]struct{})
	out := tpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		name := strings.TrimSpace(tag)
		value, ok := vars[name]
		if !ok || name == "" {
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				missing = append(missing, name)
			}
			return 0, nil
		}
		return io.WriteString(w, formatValue(value))
	})
	if len(missing) > 0 {
		return "", &UnresolvedError{Names: missing}
	}
	return out, nil
}

func formatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case fmt.Stringer:
		return value.String()
	default:
		return fmt.Sprint(value)
	}
}
