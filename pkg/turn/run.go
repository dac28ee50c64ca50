package turn

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mhalvorsen/go-parley/pkg/llm"
	"github.com/mhalvorsen/go-parley/pkg/search"
	"github.com/mhalvorsen/go-parley/pkg/session"
	"github.com/mhalvorsen/go-parley/pkg/weather"
	"github.com/mhalvorsen/go-parley/pkg/workflow"
)

const systemPrompt = `You are a concise, helpful voice assistant. Answer in a natural spoken register. Keep replies short unless the user asks for depth.`

// runTurn claims the turn gate and executes the turn. The claim is a
// compare-and-swap so racing submissions cannot both pass.
func (o *Orchestrator) runTurn(ctx context.Context, tc *TurnContext) error {
	if !o.deps.State.TryBeginStreaming() {
		o.logger.Warn("turn rejected, another turn in flight", "input", tc.Input)
		return ErrBusy
	}
	return o.runTurnOwned(ctx, tc)
}

// runTurnOwned executes the full per-turn sequence: context gathering,
// thinking pre-process, streaming generation, thinking post-process,
// synthesis, and persistence. Strictly ordered; the caller holds the
// streaming flag, released here on every path.
func (o *Orchestrator) runTurnOwned(ctx context.Context, tc *TurnContext) error {
	defer func() {
		o.deps.State.SetStreaming(false)
		o.dispatchQueued()
	}()

	o.mu.Lock()
	sess := o.sess
	o.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}

	stages := tc.Stages
	if stages == nil {
		stages = workflow.New(false, o.deps.State.VoiceEnabled())
	}
	if !tc.FromVoice {
		// Voice turns marked their reference point at capture.
		o.metrics.MarkInput()
	}

	userMsg := session.NewMessage(session.RoleUser, tc.Input)
	o.appendMessage(sess, userMsg)
	o.persistAsync(sess.ID, userMsg)

	o.gatherContext(ctx, tc, sess)
	o.refine(ctx, tc)

	stages = workflow.Start(stages, workflow.StageModel)
	o.publishStages(stages)

	assistant := session.NewMessage(session.RoleAssistant, "")
	content, err := o.generate(ctx, tc, sess, assistant.ID)
	if err != nil {
		stages = workflow.Complete(stages, workflow.StageModel, workflow.StatusError)
		o.publishStages(stages)
		o.status("Generation failed: " + err.Error())
		o.logger.Error("model stream failed", "error", err)
		return err
	}

	content = o.polish(ctx, tc, content)
	stages = workflow.Complete(stages, workflow.StageModel, workflow.StatusSuccess)
	o.publishStages(stages)

	assistant.Content = content
	assistant.Sources = tc.Sources
	o.delta(assistant.ID, content)

	stages = o.synthesize(ctx, stages, content)

	assistant.WorkflowStages = workflow.Sanitize(stages)
	assistant.LatencyMs = time.Since(tc.StartedAt).Milliseconds()
	assistant.CompletedAt = time.Now()
	o.metrics.MarkDone()

	o.appendMessage(sess, assistant)
	o.persistAsync(sess.ID, assistant)

	o.mu.Lock()
	sess.TurnCount++
	turnCount := sess.TurnCount
	defaultTitle := sess.HasDefaultTitle()
	o.mu.Unlock()

	if turnCount%o.cfg.TitleEvery == 0 && defaultTitle {
		go o.autoTitle(context.WithoutCancel(ctx), sess)
	}
	return nil
}

// gatherContext fills tc.ContextNote from the weather, browse, or search
// collaborator. Failures degrade the turn's context, never abort it.
func (o *Orchestrator) gatherContext(ctx context.Context, tc *TurnContext, sess *session.Session) {
	if o.deps.Weather != nil && weather.IsWeatherIntent(tc.Input) {
		report, err := o.deps.Weather.Current(ctx, o.weatherLocation(tc.Input))
		if err != nil {
			o.logger.Warn("weather lookup failed", "error", err)
			o.status("Weather unavailable, answering without live data")
			return
		}
		tc.ContextNote = report.Describe()
		return
	}

	if o.deps.Browse != nil {
		if url := firstURL(tc.Input); url != "" {
			text, err := o.deps.Browse.Fetch(ctx, url)
			if err != nil {
				o.logger.Warn("page fetch failed", "url", url, "error", err)
				o.status("Could not read the linked page")
			} else {
				tc.ContextNote = "Content of " + url + ":\n" + text
			}
			return
		}
	}

	if o.deps.Search == nil || !o.deps.State.SearchEnabled() {
		return
	}

	query := o.searchQuery(ctx, tc, sess)
	results, err := o.deps.Search.Search(ctx, query, o.cfg.SearchResults)
	if err != nil {
		// Auto-disable so a dead backend does not tax every later turn.
		o.deps.State.SetSearchEnabled(false)
		tc.ContextNote = describeSearchFailure(query)
		o.logger.Warn("search failed, disabling web search", "error", err)
		o.status("Web search unavailable, disabled for this session")
		return
	}

	curated := search.Curate(query, results, time.Now())
	if len(curated) == 0 {
		return
	}

	var b strings.Builder
	b.WriteString("Web search results for \"")
	b.WriteString(query)
	b.WriteString("\":\n")
	for i, r := range curated {
		fmt.Fprintf(&b, "%d. %s - %s (%s)\n", i+1, r.Title, r.Snippet, r.URL)
		tc.Sources = append(tc.Sources, session.SearchSource{Title: r.Title, URL: r.URL})
	}
	tc.ContextNote = b.String()
}

// searchQuery asks the model for a focused query over recent turns,
// falling back to the raw input.
func (o *Orchestrator) searchQuery(ctx context.Context, tc *TurnContext, sess *session.Session) string {
	msgs := []llm.Message{{
		Role:    llm.RoleSystem,
		Content: "Produce one concise web search query for the user's latest request, given the conversation. Respond with the query only.",
	}}
	msgs = append(msgs, o.history(sess, 6)...)

	resp, err := o.deps.Model.Chat(ctx, &llm.ChatRequest{
		Model:       o.cfg.ChatModel,
		Messages:    msgs,
		Temperature: 0.2,
		MaxTokens:   64,
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		return tc.Input
	}
	return strings.Trim(strings.TrimSpace(resp.Content), `"`)
}

func describeSearchFailure(query string) string {
	return "Web search for \"" + query + "\" failed; no results are available. Answer from your own knowledge and say so if the answer may be out of date."
}

// refine runs the thinking pre-process. Failure falls back to the raw
// input and skips the post-process for consistency.
func (o *Orchestrator) refine(ctx context.Context, tc *TurnContext) {
	if o.cfg.ThinkingModel == "" {
		return
	}
	r, err := llm.Refine(ctx, o.deps.Model, o.cfg.ThinkingModel, tc.Input)
	if err != nil {
		o.logger.Warn("thinking pre-process failed", "error", err)
		return
	}
	tc.Refined = r.RefinedQuery
}

// polish runs the thinking post-process over the full draft. Only runs
// when the pre-process succeeded; a cosmetic failure keeps the draft.
func (o *Orchestrator) polish(ctx context.Context, tc *TurnContext, draft string) string {
	if o.cfg.ThinkingModel == "" || tc.Refined == "" {
		return draft
	}
	p, err := llm.PolishReply(ctx, o.deps.Model, o.cfg.ThinkingModel, draft)
	if err != nil {
		o.logger.Warn("thinking post-process failed, keeping draft", "error", err)
		return draft
	}
	return p.ImprovedReply
}

// generate streams the model reply, growing the assistant message
// monotonically as tokens arrive.
func (o *Orchestrator) generate(ctx context.Context, tc *TurnContext, sess *session.Session, msgID string) (string, error) {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	msgs = append(msgs, o.history(sess, o.cfg.HistoryLimit)...)
	if tc.ContextNote != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: tc.ContextNote})
	}

	// History already ends with the raw user message; a refinement
	// replaces it for the model call only.
	if tc.Refined != "" && len(msgs) > 0 {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == llm.RoleUser {
				msgs[i].Content = tc.Refined
				break
			}
		}
	}

	stream, err := o.deps.Model.Stream(ctx, &llm.ChatRequest{
		Model:    o.cfg.ChatModel,
		Messages: msgs,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if err != nil {
			return "", err
		}
		if chunk.Delta != "" {
			o.metrics.MarkFirstToken()
			b.WriteString(chunk.Delta)
			o.delta(msgID, b.String())
		}
		if chunk.Done {
			return b.String(), nil
		}
	}
}

// synthesize runs the tts stage when voice output is enabled and text is
// non-empty. The pending-resume flag is armed before enqueue so the
// monitor cannot re-arm between synthesis and playback start.
func (o *Orchestrator) synthesize(ctx context.Context, stages []workflow.Stage, text string) []workflow.Stage {
	if !o.deps.State.VoiceEnabled() || o.deps.Speech == nil || o.deps.Queue == nil {
		// Voice disabled after the stage set was created.
		stages = workflow.Remove(stages, workflow.StageTTS)
		o.publishStages(stages)
		return stages
	}
	if strings.TrimSpace(text) == "" {
		stages = workflow.Remove(stages, workflow.StageTTS)
		o.publishStages(stages)
		return stages
	}

	stages = workflow.Start(stages, workflow.StageTTS)
	o.publishStages(stages)

	res, err := o.deps.Speech.Synthesize(ctx, Speakable(text))
	if err != nil {
		stages = workflow.Complete(stages, workflow.StageTTS, workflow.StatusError)
		o.publishStages(stages)
		o.status("Speech synthesis failed")
		o.logger.Warn("synthesis failed", "error", err)
		return stages
	}

	o.metrics.MarkSynthesis()
	o.deps.State.SetPendingResume(true)
	seg := speechSamples(res)
	seg.ID = uuid.NewString()
	o.deps.Queue.Enqueue(seg)

	stages = workflow.Complete(stages, workflow.StageTTS, workflow.StatusSuccess)
	o.publishStages(stages)
	return stages
}

// history returns the last n messages as model messages, skipping
// system-role entries.
func (o *Orchestrator) history(sess *session.Session, n int) []llm.Message {
	o.mu.Lock()
	msgs := append([]session.Message(nil), sess.Messages...)
	o.mu.Unlock()

	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == session.RoleSystem {
			continue
		}
		out = append(out, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	return out
}

func (o *Orchestrator) appendMessage(sess *session.Session, msg session.Message) {
	o.mu.Lock()
	sess.Messages = append(sess.Messages, msg)
	o.mu.Unlock()
}

// persistAsync writes the message to the store in the background.
// Persistence failures are logged, never surfaced as turn failures.
func (o *Orchestrator) persistAsync(sessionID string, msg session.Message) {
	if o.deps.Store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.deps.Store.AppendMessage(ctx, sessionID, msg); err != nil {
			o.logger.Error("persist message failed", "session", sessionID, "error", err)
		}
	}()
}

// weatherLocation pulls a trailing "in <place>" from the query, falling
// back to the configured default.
func (o *Orchestrator) weatherLocation(input string) string {
	lower := strings.ToLower(input)
	if idx := strings.LastIndex(lower, " in "); idx >= 0 {
		loc := strings.Trim(input[idx+4:], " ?!.")
		if loc != "" {
			return loc
		}
	}
	return o.cfg.DefaultLocation
}

var urlRe = regexp.MustCompile(`https?://[^\s]+`)

func firstURL(input string) string {
	return urlRe.FindString(input)
}
