package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nikhilbhutani/accentcoach/internal/audio"
	"github.com/nikhilbhutani/accentcoach/internal/multimodal/stt"
	"github.com/nikhilbhutani/accentcoach/internal/pronunciation"
)

type Pronunciation interface {
	Transcribe(ctx context.Context, raw []byte, locale string) (*pronunciation.Transcript, error)
	Assess(ctx context.Context, raw []byte, req pronunciation.Request) (*pronunciation.Feedback, error)
}

// PronunciationRecorder is optional.
type PronunciationRecorder interface {
	RecordPronunciation(ctx context.Context, kind, outcome string)
}

type PronunciationHandler struct {
	svc       Pronunciation
	maxUpload int64
	metrics   PronunciationRecorder
}

func NewPronunciationHandler(svc Pronunciation, maxUpload int64, metrics PronunciationRecorder) *PronunciationHandler {
	return &PronunciationHandler{svc: svc, maxUpload: maxUpload, metrics: metrics}
}

// Transcribe recognizes the "audio" upload. The locale comes from the
// "locale" field or from "language" and "accent".
func (h *PronunciationHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	raw, ok := readAudioUpload(w, r, h.maxUpload)
	if !ok {
		return
	}

	res, err := h.svc.Transcribe(r.Context(), raw, formLocale(r))
	h.record(r.Context(), "transcribe", err)
	if err != nil {
		writePronunciationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Assess scores the "audio" upload against "reference_text". With
// word_practice set, a different word is rejected before scoring.
func (h *PronunciationHandler) Assess(w http.ResponseWriter, r *http.Request) {
	raw, ok := readAudioUpload(w, r, h.maxUpload)
	if !ok {
		return
	}
	reference := r.FormValue("reference_text")
	if reference == "" {
		writeError(w, http.StatusBadRequest, "reference_text is required")
		return
	}
	wordPractice, _ := strconv.ParseBool(r.FormValue("word_practice"))

	fb, err := h.svc.Assess(r.Context(), raw, pronunciation.Request{
		ReferenceText: reference,
		Locale:        formLocale(r),
		WordPractice:  wordPractice,
	})
	h.record(r.Context(), "assess", err)
	if err != nil {
		writePronunciationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}

func (h *PronunciationHandler) record(ctx context.Context, kind string, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "scored"
	var wrong *pronunciation.WrongWordError
	switch {
	case err == nil:
	case errors.As(err, &wrong):
		outcome = "wrong_word"
	case errors.Is(err, stt.ErrNoSpeech):
		outcome = "no_speech"
	default:
		outcome = "error"
	}
	h.metrics.RecordPronunciation(ctx, kind, outcome)
}

func formLocale(r *http.Request) string {
	if loc := r.FormValue("locale"); loc != "" {
		return loc
	}
	return pronunciation.ResolveLocale(r.FormValue("language"), r.FormValue("accent"))
}

func writePronunciationError(w http.ResponseWriter, err error) {
	var wrong *pronunciation.WrongWordError
	switch {
	case errors.As(err, &wrong):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":            wrong.Error(),
			"transcribed_text": wrong.Said,
		})
	case errors.Is(err, stt.ErrNoSpeech):
		writeError(w, http.StatusUnprocessableEntity, "No speech could be recognized")
	case errors.Is(err, audio.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, stt.ErrAssessmentUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		slog.Warn("pronunciation request abandoned", "error", err)
		writeError(w, http.StatusServiceUnavailable, "speech recognition was canceled")
	default:
		slog.Error("pronunciation request failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
