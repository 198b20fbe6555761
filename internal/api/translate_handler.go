package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/rayin-translation/internal/auth"
	"github.com/JakeFAU/rayin-translation/internal/library"
	"github.com/JakeFAU/rayin-translation/internal/presets"
	"github.com/JakeFAU/rayin-translation/internal/translate"
)

type translateRequest struct {
	Source   string `json:"source"`
	Note     string `json:"note,omitempty"`
	Existing string `json:"existing,omitempty"`
	PresetID string `json:"preset_id,omitempty"`
	NovelID  string `json:"novel_id,omitempty"`
	// Settings overrides the stored preset when present.
	Settings *library.Settings `json:"settings,omitempty"`
}

// translate handles POST /api/admin/translate. The reply is a server-sent
// event stream with one event per translate.Event, named by its type.
func (s *Server) translate(w http.ResponseWriter, r *http.Request) {
	if s.translator == nil {
		unavailable(w, "translator")
		return
	}
	userID := ""
	if state := auth.FromContext(r.Context()); state.User != nil {
		userID = state.User.ID
	}
	var in translateRequest
	if err := decodeJSON(r, &in); err != nil {
		s.writeErr(w, r, err, "translate")
		return
	}
	if strings.TrimSpace(in.Source) == "" {
		writeError(w, http.StatusBadRequest, translate.ErrEmptySource.Error())
		return
	}
	settings, err := s.translationSettings(r, in)
	if err != nil {
		s.writeErr(w, r, err, "resolve preset")
		return
	}
	// Only well-formed requests spend a token.
	if s.limiter != nil && !s.limiter.Allow(userID) {
		wait := s.limiter.RetryAfter(userID)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		writeError(w, http.StatusTooManyRequests, "too many translation requests")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var writeErr error
	send := func(evt translate.Event) {
		if writeErr != nil {
			return
		}
		data, err := json.Marshal(evt)
		if err != nil {
			writeErr = err
			return
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
			writeErr = err
			return
		}
		flusher.Flush()
	}

	_, err = s.translator.Translate(r.Context(), translate.Request{
		Source:   in.Source,
		Note:     in.Note,
		Settings: settings,
		Existing: in.Existing,
	}, send)
	if writeErr != nil {
		s.logger.Debug("translation stream client went away", zap.Error(writeErr))
	}
	if err != nil && !errors.Is(err, r.Context().Err()) {
		s.logger.Warn("translation ended with error",
			zap.Error(err),
			zap.String("request_id", requestID(r.Context())),
			zap.String("user_id", userID),
		)
	}
}

func (s *Server) translationSettings(r *http.Request, in translateRequest) (library.Settings, error) {
	if in.Settings != nil {
		settings := *in.Settings
		if settings.Model == "" {
			settings.Model = presets.DefaultModel
		}
		return settings, presets.Validate(settings)
	}
	if s.presets == nil {
		return presets.Defaults(), nil
	}
	return s.presets.Resolve(r.Context(), in.PresetID, in.NovelID)
}
