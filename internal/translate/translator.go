// Package translate streams chapter translations from an OpenAI-compatible
// chat completion endpoint.
package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/JakeFAU/rayin-translation/internal/activity"
	"github.com/JakeFAU/rayin-translation/internal/clock/system"
	"github.com/JakeFAU/rayin-translation/internal/library"
	"github.com/JakeFAU/rayin-translation/internal/logging"
	"github.com/JakeFAU/rayin-translation/internal/metrics"
)

// DefaultSystemPrompt is used when the settings carry no prompt.
const DefaultSystemPrompt = "Translate the following Japanese text to English faithfully."

// Provider selects the completion API dialect.
type Provider string

// Supported providers.
const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderOpenAI     Provider = "openai"
)

var (
	// ErrEmptySource is returned when there is nothing to translate.
	ErrEmptySource = errors.New("source text is empty")
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("translator API key is not configured")
)

// Config configures a Translator.
type Config struct {
	Provider     Provider
	BaseURL      string
	APIKey       string
	Referer      string
	Title        string
	DefaultModel string
	HTTPClient   *http.Client
}

// Request is one translation job.
type Request struct {
	Source   string
	Note     string
	Settings library.Settings
	// Existing is content already in the editor; output is appended after it.
	Existing string
}

// EventType names a streaming update.
type EventType string

// Streaming updates delivered to the callback.
const (
	EventPhase     EventType = "phase"
	EventReasoning EventType = "reasoning"
	EventContent   EventType = "content"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// Event is a single streaming update.
type Event struct {
	Type   EventType `json:"type"`
	Phase  Phase     `json:"phase,omitempty"`
	Text   string    `json:"text,omitempty"`
	Tokens int       `json:"tokens,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Translator runs streaming translations.
type Translator struct {
	cfg     Config
	client  *openai.Client
	clock   library.Clock
	emitter activity.Emitter
	logger  *zap.Logger
}

// New builds a Translator. A missing API key is reported per request so the
// rest of the service can run without one.
func New(cfg Config, clock library.Clock, emitter activity.Emitter, logger *zap.Logger) (*Translator, error) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenRouter
	}
	if cfg.Provider != ProviderOpenRouter && cfg.Provider != ProviderOpenAI {
		return nil, fmt.Errorf("unknown translator provider %q", cfg.Provider)
	}
	if cfg.BaseURL == "" {
		switch cfg.Provider {
		case ProviderOpenRouter:
			cfg.BaseURL = "https://openrouter.ai/api/v1"
		case ProviderOpenAI:
			cfg.BaseURL = "https://api.openai.com/v1"
		}
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "openrouter/pony-alpha"
	}
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	if clock == nil {
		clock = system.New()
	}
	if emitter == nil {
		emitter = activity.Nop{}
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.EmptyMessagesLimit = 1000
	oc.HTTPClient = &transport{base: base, provider: cfg.Provider, referer: cfg.Referer, title: cfg.Title}

	return &Translator{
		cfg:     cfg,
		client:  openai.NewClientWithConfig(oc),
		clock:   clock,
		emitter: emitter,
		logger:  logging.For(logger, logging.CategoryTranslation),
	}, nil
}

// SystemPrompt returns the prompt for settings plus an optional note.
func SystemPrompt(settings library.Settings, note string) string {
	prompt := settings.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	if note != "" {
		prompt += "\n\nCONTEXT / NOTES:\n" + note
	}
	return prompt
}

func (t *Translator) model(s library.Settings) string {
	if strings.TrimSpace(s.Model) != "" {
		return s.Model
	}
	return t.cfg.DefaultModel
}

func (t *Translator) chatRequest(req Request) openai.ChatCompletionRequest {
	s := req.Settings
	cr := openai.ChatCompletionRequest{
		Model:       t.model(s),
		Stream:      true,
		Temperature: float32(s.Temperature),
		TopP:        float32(s.TopP),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(s, req.Note)},
			{Role: openai.ChatMessageRoleUser, Content: req.Source},
		},
	}
	if t.cfg.Provider == ProviderOpenAI {
		cr.MaxCompletionTokens = s.MaxTokens
		if s.Reasoning {
			cr.ReasoningEffort = "high"
		}
	} else {
		cr.MaxTokens = s.MaxTokens
	}
	return cr
}

// Translate streams a translation of req.Source, delivering updates to
// onEvent as they arrive. The returned Session holds the final state and is
// non-nil whenever a run was attempted.
func (t *Translator) Translate(ctx context.Context, req Request, onEvent func(Event)) (*Session, error) {
	if strings.TrimSpace(req.Source) == "" {
		return nil, ErrEmptySource
	}
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	session := NewSession(t.clock, req.Existing)
	model := t.model(req.Settings)
	logger := t.logger.With(zap.String("model", model))

	session.start()
	onEvent(Event{Type: EventPhase, Phase: PhaseConnecting})

	err := t.run(ctx, req, session, onEvent, logger)
	session.finish(err)
	t.observe(model, session, err)

	if err != nil {
		logger.Warn("translation failed", zap.Error(err), zap.Int("tokens", session.Tokens()))
		onEvent(Event{Type: EventError, Error: err.Error()})
	} else {
		logger.Info("translation finished",
			zap.Int("tokens", session.Tokens()),
			zap.Duration("elapsed", session.Elapsed()),
		)
		onEvent(Event{Type: EventDone, Tokens: session.Tokens()})
	}
	onEvent(Event{Type: EventPhase, Phase: PhaseIdle})
	return session, err
}

func (t *Translator) run(ctx context.Context, req Request, session *Session, onEvent func(Event), logger *zap.Logger) error {
	if t.cfg.APIKey == "" {
		return ErrMissingAPIKey
	}
	ctx = withExtras(ctx, extras{
		temperature: req.Settings.Temperature,
		topK:        req.Settings.TopK,
		reasoning:   req.Settings.Reasoning,
	})
	stream, err := t.client.CreateChatCompletionStream(ctx, t.chatRequest(req))
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return se
		}
		return fmt.Errorf("open stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	session.setPhase(PhaseThinking)
	onEvent(Event{Type: EventPhase, Phase: PhaseThinking})

	for {
		data, err := stream.RecvRaw()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream: %w", err)
		}
		content, reasoning, perr := parseChunk(t.cfg.Provider, data)
		if perr != nil {
			logger.Warn("skipping malformed stream chunk", zap.Error(perr), zap.ByteString("data", data))
			continue
		}
		if reasoning != "" {
			session.addReasoning(reasoning)
			onEvent(Event{Type: EventReasoning, Text: reasoning})
		}
		if content != "" {
			if session.setPhase(PhaseStreaming) {
				onEvent(Event{Type: EventPhase, Phase: PhaseStreaming})
			}
			n := session.addContent(content)
			onEvent(Event{Type: EventContent, Text: content, Tokens: n})
		}
	}
}

func (t *Translator) observe(model string, session *Session, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		status = "canceled"
	default:
		status = "error"
	}
	elapsed := session.Elapsed()
	metrics.ObserveTranslation(model, status, session.Tokens(), elapsed)
	evt := activity.Event{
		Kind:  activity.KindTranslation,
		TS:    t.clock.Now(),
		Count: int64(session.Tokens()),
		Dur:   elapsed,
		Note:  model,
	}
	if err != nil {
		evt.Failed = true
		evt.Note = fmt.Sprintf("%s: %v", model, err)
	}
	t.emitter.Emit(evt)
}
