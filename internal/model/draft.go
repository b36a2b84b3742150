package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentiment is the market direction a draft commits to.
type Sentiment string

const (
	Bullish Sentiment = "BULLISH"
	Bearish Sentiment = "BEARISH"
	Neutral Sentiment = "NEUTRAL"
)

// ParseSentiment normalizes free-form backend output, defaulting to Neutral.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(strings.ToUpper(strings.TrimSpace(s))) {
	case Bullish:
		return Bullish
	case Bearish:
		return Bearish
	default:
		return Neutral
	}
}

var errEmptyNarrative = errors.New("draft has no narrative")

// GenerationDraft is unvalidated generation output. JSON names follow the
// generation backend contract.
type GenerationDraft struct {
	Sentiment          Sentiment `json:"sentiment"`
	Reasoning          string    `json:"reasoning"`
	Narrative          string    `json:"tweet"`
	KnowledgeBaseEntry string    `json:"knowledge_base_entry,omitempty"`
	ClaimedFacts       Claims    `json:"hallucination_check,omitempty"`
}

// Validate rejects drafts that carry no narrative.
func (d GenerationDraft) Validate() error {
	if strings.TrimSpace(d.Narrative) == "" {
		return errEmptyNarrative
	}
	return nil
}

// Claims is the list of facts a draft says it relied on. Backends return
// either plain strings or small objects; both decode to strings.
type Claims []string

// UnmarshalJSON accepts an array of strings or objects.
func (c *Claims) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("claims: %w", err)
	}
	out := make(Claims, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Claim string `json:"claim"`
			Fact  string `json:"fact"`
		}
		if err := json.Unmarshal(r, &obj); err == nil && (obj.Claim != "" || obj.Fact != "") {
			if obj.Claim != "" {
				out = append(out, obj.Claim)
			} else {
				out = append(out, obj.Fact)
			}
			continue
		}
		out = append(out, string(r))
	}
	*c = out
	return nil
}
