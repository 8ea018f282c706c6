// Package assist asks a text-completion backend for reply suggestions and
// conversation summaries.
package assist

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"chatwave-backend/internal/logger"

	"golang.org/x/time/rate"
)

const (
	NothingToSummarize = "There are no messages to summarize."
	SummaryFailed      = "Could not summarize the chat at this time."

	MaxSuggestions = 3

	requestTimeout = 20 * time.Second
)

const suggestPrompt = `You help a user reply in a chat. Given the latest messages, each formatted as "name: text", propose up to 3 short, natural replies the user could send next. Respond with a JSON object of the form {"suggestions": ["...", "..."]}.`

const summarizePrompt = `Summarize the following chat conversation in a few sentences. Each line is formatted as "name: text". Respond with a JSON object of the form {"summary": "..."}.`

// Completer sends one system and one user prompt and returns the raw reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Bridge turns chat lines into suggestions and summaries. It never returns an
// error; failures degrade to no suggestions or a fixed summary text.
type Bridge struct {
	completer Completer
	limiter   *rate.Limiter
}

// NewBridge allows perMinute remote calls per minute. Zero or less means no limit.
func NewBridge(c Completer, perMinute int) *Bridge {
	limit := rate.Inf
	burst := 1
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
		burst = perMinute
	}
	return &Bridge{completer: c, limiter: rate.NewLimiter(limit, burst)}
}

// SuggestReplies returns at most MaxSuggestions replies to texts.
func (b *Bridge) SuggestReplies(ctx context.Context, texts []string) []string {
	if len(texts) == 0 {
		return []string{}
	}
	if !b.limiter.Allow() {
		logger.Debug().Msg("suggestions skipped by rate limit")
		return []string{}
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	raw, err := b.completer.Complete(ctx, suggestPrompt, strings.Join(texts, "\n"))
	if err != nil {
		logger.Warn().Err(err).Msg("suggest replies failed")
		return []string{}
	}

	var out struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		logger.Warn().Err(err).Msg("suggest replies returned malformed output")
		return []string{}
	}

	suggestions := make([]string, 0, MaxSuggestions)
	for _, s := range out.Suggestions {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		suggestions = append(suggestions, s)
		if len(suggestions) == MaxSuggestions {
			break
		}
	}
	return suggestions
}

// SummarizeChat returns a short summary of texts.
func (b *Bridge) SummarizeChat(ctx context.Context, texts []string) string {
	if len(texts) == 0 {
		return NothingToSummarize
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := b.limiter.Wait(ctx); err != nil {
		logger.Warn().Err(err).Msg("summary rate limited")
		return SummaryFailed
	}
	raw, err := b.completer.Complete(ctx, summarizePrompt, strings.Join(texts, "\n"))
	if err != nil {
		logger.Warn().Err(err).Msg("summarize chat failed")
		return SummaryFailed
	}

	var out struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || strings.TrimSpace(out.Summary) == "" {
		logger.Warn().Err(err).Msg("summarize chat returned malformed output")
		return SummaryFailed
	}
	return strings.TrimSpace(out.Summary)
}
