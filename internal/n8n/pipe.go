// Package n8n bridges a chat turn to an n8n workflow webhook.
//
// The chat request body is copied, tagged with the session id and the last
// user message, enriched with the session's files and the system prompt's
// <source> blocks, and posted to the workflow. The workflow's reply is
// appended to the conversation as an assistant message.
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/Dmi3yy/webui-pipes/internal/domain"
	"github.com/Dmi3yy/webui-pipes/internal/events"
	"github.com/Dmi3yy/webui-pipes/internal/metrics"
	"github.com/Dmi3yy/webui-pipes/internal/storage"
	"github.com/Dmi3yy/webui-pipes/internal/webui"
)

const (
	ID   = "n8n_pipe"
	Name = "N8N Pipe"
)

// Pipe is safe for concurrent use; valves may be swapped while calls run.
type Pipe struct {
	mu     sync.RWMutex
	valves Valves

	client *http.Client
	webui  *webui.Client
	store  storage.Store
	clock  clockwork.Clock
	logger *slog.Logger
}

type Option func(*Pipe)

func WithHTTPClient(c *http.Client) Option { return func(p *Pipe) { p.client = c } }

// WithWebUI sets the client used for session file lookups and user tokens.
func WithWebUI(c *webui.Client) Option { return func(p *Pipe) { p.webui = c } }

// WithStore keeps debug payload dumps in s.
func WithStore(s storage.Store) Option { return func(p *Pipe) { p.store = s } }

func WithClock(c clockwork.Clock) Option { return func(p *Pipe) { p.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(p *Pipe) { p.logger = l } }

func New(valves Valves, opts ...Option) *Pipe {
	p := &Pipe{
		valves: valves.withDefaults(),
		client: http.DefaultClient,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.webui == nil {
		p.webui = webui.NewClient(webui.WithHTTPClient(p.client), webui.WithLogger(p.logger))
	}
	return p
}

func (p *Pipe) Valves() Valves {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.valves
}

// SetValves replaces the settings for subsequent calls.
func (p *Pipe) SetValves(v Valves) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.valves = v.withDefaults()
}

// Pipe runs one chat turn. body is the host's chat request and receives the
// assistant reply in body["messages"]. chatID may be empty when unknown.
// The reply is returned as-is; failures are returned as {"error": "..."}.
func (p *Pipe) Pipe(ctx context.Context, body map[string]any, user *domain.User, chatID string, sink events.Sink) any {
	v := p.Valves()
	status := events.NewThrottle(sink, v.EmitInterval, v.EnableStatusIndicator, p.clock)

	status.Emit(ctx, "info", "Calling n8n Agent…", false)

	messages, _ := body["messages"].([]any)
	if len(messages) == 0 {
		status.Emit(ctx, "error", "No messages", true)
		metrics.N8NCallsTotal.WithLabelValues("no_messages").Inc()
		return map[string]any{"error": "No messages found"}
	}
	question := messageContent(messages[len(messages)-1])

	payload, err := deepCopy(body)
	if err != nil {
		return p.fail(ctx, status, err)
	}
	sessionID := chatID
	if sessionID == "" {
		sessionID = "None"
	}
	payload["sessionId"] = sessionID
	payload[v.InputField] = question

	var files []map[string]any
	if chatID != "" {
		token := v.WebUIAPIToken
		if token == "" {
			if token, err = p.webui.TokenFor(user); err != nil {
				return p.fail(ctx, status, err)
			}
		}
		files, err = p.webui.FilesForSession(ctx, v.WebUIFilesURL, chatID, token)
		if err != nil {
			return p.fail(ctx, status, err)
		}
	}

	if prompt := systemPrompt(payload["messages"]); strings.Contains(prompt, "<source") {
		sources := ExtractSources(prompt)
		attachFiles(sources, groupFiles(files))
		if len(sources) > 0 {
			payload["sources"] = sources
		}
	}

	dump, err := domain.MarshalIndentUnescaped(payload)
	if err != nil {
		return p.fail(ctx, status, err)
	}
	payload["debug_dump"] = dump

	if v.Debug {
		p.logger.Info("n8n full payload", slog.String("chat_id", chatID), slog.String("payload", dump))
		if p.store != nil {
			if err := p.store.SaveDebugDump(ctx, &storage.DebugDump{ChatID: chatID, Payload: dump}); err != nil {
				p.logger.Warn("failed to store debug dump", slog.String("error", err.Error()))
			}
		}
		status.Emit(ctx, "debug", "FULL PAYLOAD attached", false)
	}

	reply, err := p.post(ctx, v, payload)
	if err != nil {
		return p.fail(ctx, status, err)
	}

	body["messages"] = append(messages, map[string]any{"role": "assistant", "content": reply})

	status.Emit(ctx, "info", "Complete", true)
	metrics.N8NCallsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return reply
}

func (p *Pipe) post(ctx context.Context, v Valves, payload map[string]any) (any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.N8NURL, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.N8NBearerToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("n8n returned status %d", resp.StatusCode)
	}

	var data any
	if err := json.Unmarshal(respBody, &data); err != nil {
		return nil, fmt.Errorf("decode n8n response: %w", err)
	}
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, nil
	}
	return obj[v.ResponseField], nil
}

func (p *Pipe) fail(ctx context.Context, status *events.Throttle, err error) any {
	p.logger.Error("n8n call failed", slog.String("error", err.Error()))
	status.Emit(ctx, "error", err.Error(), true)
	metrics.N8NCallsTotal.WithLabelValues(metrics.OutcomeError).Inc()
	return map[string]any{"error": err.Error()}
}

func messageContent(m any) any {
	msg, ok := m.(map[string]any)
	if !ok {
		return ""
	}
	content, ok := msg["content"]
	if !ok {
		return ""
	}
	return content
}

// systemPrompt returns the text of the first system message, or "".
func systemPrompt(messages any) string {
	list, _ := messages.([]any)
	for _, m := range list {
		msg, ok := m.(map[string]any)
		if !ok || msg["role"] != "system" {
			continue
		}
		s, _ := msg["content"].(string)
		return s
	}
	return ""
}

func deepCopy(body map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("copy body: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("copy body: %w", err)
	}
	if out == nil {
		out = make(map[string]any)
	}
	return out, nil
}
