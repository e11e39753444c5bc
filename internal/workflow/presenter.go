package workflow

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/rahul/flowdesk/internal/observability"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// MarkupTags is the vocabulary of the formatted report. The renderer on the
// other side depends on these exact names.
var MarkupTags = []string{"summary", "list", "item", "strong", "suggestion", "chart-title"}

// DefaultFallback is returned when the completion service produces no
// usable report.
const DefaultFallback = "Your request has been completed, but I couldn't prepare a summary of the results."

// Presenter turns the final bindings of a run into the formatted report.
type Presenter struct {
	Model       llms.Model
	Prompts     *PromptManager
	Logger      *observability.Logger
	Temperature float64
	Fallback    string
}

// Present never fails: a completion error or an empty answer yields the
// fallback acknowledgement. Markup outside MarkupTags is logged and passed
// through unchanged.
func (p *Presenter) Present(ctx context.Context, b Bindings) string {
	runID := runIDFrom(ctx)

	prompt, err := p.Prompts.GetPresenterPrompt()
	if err != nil {
		return p.fallback(runID, err)
	}

	if b == nil {
		b = Bindings{}
	}
	payload, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return p.fallback(runID, err)
	}

	text, err := complete(ctx, p.Model, p.Logger, runID, purposePresent, prompt, string(payload), p.Temperature)
	if err != nil {
		return p.fallback(runID, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return p.fallback(runID, nil)
	}

	if unknown := UnknownTags(text); len(unknown) > 0 {
		p.Logger.Warn("report uses markup outside the vocabulary",
			zap.String("run_id", runID),
			zap.Strings("tags", unknown),
		)
	}
	p.Logger.Log(observability.Event{
		Type:  observability.EventTypePresent,
		RunID: runID,
		Data:  map[string]any{"chars": len(text)},
	})
	return text
}

func (p *Presenter) fallback(runID string, err error) string {
	observability.PresenterFallbacksTotal.Inc()
	p.Logger.Log(observability.Event{
		Type:  observability.EventTypePresent,
		RunID: runID,
		Data:  map[string]any{"fallback": true},
		Err:   err,
	})
	if p.Fallback != "" {
		return p.Fallback
	}
	return DefaultFallback
}

// UnknownTags lists, sorted and deduplicated, the tag names in text that are
// not part of MarkupTags.
func UnknownTags(text string) []string {
	allowed := make(map[string]bool, len(MarkupTags))
	for _, t := range MarkupTags {
		allowed[t] = true
	}

	seen := make(map[string]bool)
	z := html.NewTokenizer(strings.NewReader(text))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if tag := string(name); !allowed[tag] {
				seen[tag] = true
			}
		}
	}

	unknown := make([]string, 0, len(seen))
	for t := range seen {
		unknown = append(unknown, t)
	}
	sort.Strings(unknown)
	return unknown
}
