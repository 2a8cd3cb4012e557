package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nikhilbhutani/accentcoach/internal/translation"
)

type Translator interface {
	Translate(ctx context.Context, req translation.Request) (*translation.Result, error)
}

// TranslationRecorder is optional.
type TranslationRecorder interface {
	RecordTranslation(ctx context.Context, outcome string)
}

type TranslationHandler struct {
	svc     Translator
	metrics TranslationRecorder
}

func NewTranslationHandler(svc Translator, metrics TranslationRecorder) *TranslationHandler {
	return &TranslationHandler{svc: svc, metrics: metrics}
}

func (h *TranslationHandler) Translate(w http.ResponseWriter, r *http.Request) {
	var req translation.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.svc.Translate(r.Context(), req)
	if err != nil {
		h.record(r.Context(), "error")
		if errors.Is(err, translation.ErrUnavailable) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if res.Message != "" {
		h.record(r.Context(), "skipped")
		writeJSON(w, http.StatusOK, map[string]string{"message": res.Message})
		return
	}

	switch {
	case res.Cached:
		h.record(r.Context(), "cached")
	case res.TranslatedText == "" || res.TranslatedText == translation.SameLanguageMessage:
		h.record(r.Context(), "skipped")
	default:
		h.record(r.Context(), "translated")
	}
	writeJSON(w, http.StatusOK, map[string]string{"translated_text": res.TranslatedText})
}

func (h *TranslationHandler) record(ctx context.Context, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordTranslation(ctx, outcome)
	}
}
