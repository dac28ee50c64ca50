package turn

import (
	"context"
	"strings"
	"time"

	"github.com/mhalvorsen/go-parley/pkg/llm"
	"github.com/mhalvorsen/go-parley/pkg/session"
)

const titlePrompt = `Write a 3-6 word title for this conversation. Respond with the title only, no quotes or punctuation.`

// autoTitle generates a session title from recent turns. A model
// failure falls back to a heuristic title so the session is never left
// on the placeholder.
func (o *Orchestrator) autoTitle(ctx context.Context, sess *session.Session) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	title := ""
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: titlePrompt}}
	msgs = append(msgs, o.history(sess, 6)...)

	resp, err := o.deps.Model.Chat(ctx, &llm.ChatRequest{
		Model:       o.cfg.ChatModel,
		Messages:    msgs,
		Temperature: 0.3,
		MaxTokens:   24,
	})
	if err == nil {
		title = cleanTitle(resp.Content)
	} else {
		o.logger.Warn("auto-title generation failed", "error", err)
	}

	if title == "" {
		title = heuristicTitle(o.latestUserText(sess))
	}
	if title == "" {
		return
	}

	o.mu.Lock()
	sess.Title = title
	o.mu.Unlock()

	if o.deps.Store != nil {
		if err := o.deps.Store.Rename(ctx, sess.ID, title); err != nil {
			o.logger.Error("persist title failed", "session", sess.ID, "error", err)
		}
	}
	o.logger.Info("session titled", "session", sess.ID, "title", title)
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 60 {
		s = strings.TrimSpace(s[:60])
	}
	return s
}

// heuristicTitle derives a short title from message text: the first few
// words, cleaned of trailing punctuation.
func heuristicTitle(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	if len(words) > 6 {
		words = words[:6]
	}
	title := strings.Join(words, " ")
	title = strings.TrimRight(title, " ?!.,:;")
	if title == "" {
		return ""
	}
	return strings.ToUpper(title[:1]) + title[1:]
}

func (o *Orchestrator) latestUserText(sess *session.Session) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		if sess.Messages[i].Role == session.RoleUser {
			return sess.Messages[i].Content
		}
	}
	if len(sess.Messages) > 0 {
		return sess.Messages[len(sess.Messages)-1].Content
	}
	return ""
}
