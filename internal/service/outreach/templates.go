package outreach

import (
	"fmt"
	"strings"
	"sync"

	"github.com/griphq/retention-engine/internal/domain"
	"github.com/osteele/liquid"
)

// Template is a built-in outreach message with Liquid placeholders.
type Template struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	Variables []string `json:"variables"`
}

// Templates returns the built-in outreach templates in a stable order.
func Templates() []Template {
	return builtinTemplates
}

var builtinTemplates = []Template{
	{
		ID:      "check_in",
		Name:    "Check-In",
		Subject: `Hey {{ first_name | default: "there" }}, we miss you in {{ community_name }}!`,
		Body: `<p>Hey {{ first_name | default: "there" }},</p>
<p>We noticed you haven't been around <strong>{{ community_name }}</strong> lately and wanted to check in.</p>
<p>We're always adding new content and features. There's a lot you might be missing out on!</p>
<p>Come say hi when you get a chance. We'd love to see you back.</p>
<p>{{ creator_name }}</p>`,
		Variables: []string{"first_name", "community_name", "creator_name"},
	},
	{
		ID:      "renewal_reminder",
		Name:    "Renewal Reminder",
		Subject: `Your {{ community_name }} membership renews soon`,
		Body: `<p>Hey {{ first_name | default: "there" }},</p>
<p>Just a heads up: your <strong>{{ plan_name }}</strong> membership in <strong>{{ community_name }}</strong> renews in {{ days_until_renewal }} days.</p>
<p>If you have any questions or need help with anything, just reply to this email.</p>
<p>{{ creator_name }}</p>`,
		Variables: []string{"first_name", "community_name", "plan_name", "days_until_renewal", "creator_name"},
	},
	{
		ID:      "payment_recovery",
		Name:    "Payment Recovery",
		Subject: `Action needed: update your payment for {{ community_name }}`,
		Body: `<p>Hey {{ first_name | default: "there" }},</p>
<p>We had trouble processing your payment for <strong>{{ community_name }}</strong>.</p>
<p>To keep your access, please update your payment method here:</p>
<p><a href="{{ payment_update_link }}">Update Payment Method</a></p>
<p>If you need help, just reply to this email.</p>
<p>{{ creator_name }}</p>`,
		Variables: []string{"first_name", "community_name", "payment_update_link", "creator_name"},
	},
	{
		ID:      "welcome_fast_start",
		Name:    "Welcome / Fast Start",
		Subject: `Welcome to {{ community_name }}! Here's how to get started`,
		Body: `<p>Hey {{ first_name | default: "there" }}, welcome to <strong>{{ community_name }}</strong>! 🎉</p>
<p>Here are 3 things to do in your first week:</p>
<ol>
{% for step in onboarding_steps %}<li>{{ step }}</li>
{% endfor %}</ol>
<p>If you have any questions, don't hesitate to reach out.</p>
<p>{{ creator_name }}</p>`,
		Variables: []string{"first_name", "community_name", "creator_name", "onboarding_steps"},
	},
}

// Renderer renders outreach templates with Liquid. Parsed templates are
// cached by ID since the built-in set never changes at runtime.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with the domain filters registered.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// Fallback for missing personalization fields:
	// {{ first_name | default: "there" }}
	engine.RegisterFilter("default", func(value any, defaultVal string) any {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	return &Renderer{engine: engine}
}

// Render produces the subject and body for a built-in template ID. Unknown
// IDs return an error so playbook steps referencing a removed template fail
// loudly instead of sending an empty message.
func (r *Renderer) Render(templateID string, vars map[string]any) (domain.OutreachContent, error) {
	tpl, ok := r.lookup(templateID)
	if !ok {
		return domain.OutreachContent{}, fmt.Errorf("unknown outreach template %q", templateID)
	}

	subject, err := r.renderString("subject:"+templateID, tpl.Subject, vars)
	if err != nil {
		return domain.OutreachContent{}, fmt.Errorf("render subject of %s: %w", templateID, err)
	}
	body, err := r.renderString("body:"+templateID, tpl.Body, vars)
	if err != nil {
		return domain.OutreachContent{}, fmt.Errorf("render body of %s: %w", templateID, err)
	}
	return domain.OutreachContent{Subject: strings.TrimSpace(subject), Body: body}, nil
}

// RenderRaw renders an ad-hoc Liquid template string, used for custom
// playbook step content authored in the dashboard.
func (r *Renderer) RenderRaw(template string, vars map[string]any) (string, error) {
	return r.renderString("", template, vars)
}

func (r *Renderer) lookup(id string) (Template, bool) {
	for _, t := range builtinTemplates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

func (r *Renderer) renderString(cacheKey, src string, vars map[string]any) (string, error) {
	if cacheKey != "" {
		if cached, ok := r.cache.Load(cacheKey); ok {
			return cached.(*liquid.Template).RenderString(vars)
		}
	}
	tpl, err := r.engine.ParseString(src)
	if err != nil {
		return "", err
	}
	if cacheKey != "" {
		r.cache.Store(cacheKey, tpl)
	}
	return tpl.RenderString(vars)
}
