// Package critic checks a generated draft against verified facts with a
// second backend call and replaces the narrative when it overreaches.
package critic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abelbrown/sentix/internal/brain"
	"github.com/abelbrown/sentix/internal/decode"
	"github.com/abelbrown/sentix/internal/logging"
	"github.com/abelbrown/sentix/internal/model"
	"github.com/abelbrown/sentix/internal/otel"
)

// ApprovalToken is the backend's answer when the draft is fully supported.
const ApprovalToken = "PASS"

// CorrectionNote is appended to the reasoning of rewritten drafts.
const CorrectionNote = "[Critic: narrative rewritten to match verified facts]"

// Invoker is the backend call the critic needs.
type Invoker interface {
	Invoke(ctx context.Context, call brain.Call) (string, error)
}

// Verdict describes what the critic did with a draft.
type Verdict struct {
	Text      string // final draft text
	Rewritten bool
	Skipped   string // why no review happened, "" when reviewed
}

// Critic reviews drafts.
type Critic struct {
	inv    Invoker
	events *otel.Logger
}

// New creates a critic backed by inv.
func New(inv Invoker) *Critic {
	return &Critic{inv: inv}
}

// SetEventLogger attaches the audit log.
func (c *Critic) SetEventLogger(l *otel.Logger) {
	c.events = l
}

// Critique returns the final draft text: the draft itself when it is
// approved, cannot be parsed or cannot be reviewed, otherwise the draft with
// its narrative replaced.
func (c *Critic) Critique(ctx context.Context, draftText, factsText string) string {
	return c.Review(ctx, draftText, factsText).Text
}

// Review is Critique with the decision exposed.
func (c *Critic) Review(ctx context.Context, draftText, factsText string) Verdict {
	parsed := decode.Into[model.GenerationDraft](draftText)
	if !parsed.OK {
		logging.Warn("Critic skipped unparseable draft", "reason", parsed.Reason)
		c.emit(ctx, otel.Event{Level: otel.LevelWarn, Kind: otel.KindCriticSkip, Msg: "malformed draft"})
		return Verdict{Text: draftText, Skipped: "malformed_draft"}
	}
	draft := parsed.Value

	raw, err := c.inv.Invoke(ctx, brain.Call{
		System: "You are a strict fact checker for financial news posts.",
		Prompt: fmt.Sprintf(criticPrompt, factsText, draft.Narrative, ApprovalToken, ApprovalToken),
	})
	if err != nil {
		logging.Warn("Critic unavailable, keeping draft", "error", err)
		c.emit(ctx, otel.Event{Level: otel.LevelWarn, Kind: otel.KindCriticSkip, Err: err.Error()})
		return Verdict{Text: draftText, Skipped: "backend_unavailable"}
	}

	answer := cleanAnswer(raw)
	if answer == "" {
		c.emit(ctx, otel.Event{Level: otel.LevelWarn, Kind: otel.KindCriticSkip, Msg: "empty answer"})
		return Verdict{Text: draftText, Skipped: "empty_answer"}
	}
	if approved(answer) || answer == strings.TrimSpace(draft.Narrative) {
		logging.Info("Critic approved draft")
		c.emit(ctx, otel.Event{Level: otel.LevelInfo, Kind: otel.KindCriticPass})
		return Verdict{Text: draftText}
	}

	draft.Narrative = answer
	draft.Reasoning = strings.TrimSpace(draft.Reasoning + " " + CorrectionNote)
	out, err := json.Marshal(draft)
	if err != nil {
		return Verdict{Text: draftText, Skipped: "encode_failed"}
	}

	logging.Info("Critic rewrote draft", "chars", len([]rune(answer)))
	c.emit(ctx, otel.Event{Level: otel.LevelInfo, Kind: otel.KindCriticRewrite, Count: len([]rune(answer))})
	return Verdict{Text: string(out), Rewritten: true}
}

// cleanAnswer strips fences and wrapping quotes from the critic's reply.
func cleanAnswer(raw string) string {
	s := decode.StripFences(raw)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		var unquoted string
		if json.Unmarshal([]byte(s), &unquoted) == nil {
			s = unquoted
		}
	}
	return strings.TrimSpace(s)
}

func approved(answer string) bool {
	return strings.EqualFold(strings.Trim(answer, " .!'\"`*"), ApprovalToken)
}

func (c *Critic) emit(ctx context.Context, e otel.Event) {
	if c.events == nil {
		return
	}
	e.Comp = "critic"
	e.RunID = otel.RunID(ctx)
	c.events.Emit(e)
}

const criticPrompt = `Compare the DRAFT strictly against the VERIFIED FACTS.

VERIFIED FACTS:
%s

DRAFT:
%s

If every claim in the draft is supported by the verified facts, answer with exactly: %s
Otherwise answer with a complete rewritten draft that keeps the same format and tone but
states only what the verified facts support. Do not explain. Do not answer with partial
edits. Do not answer with anything other than %s or the full rewritten draft.`
