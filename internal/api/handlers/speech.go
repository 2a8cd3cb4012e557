package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/nikhilbhutani/accentcoach/internal/multimodal/tts"
)

type SpeechHandler struct {
	tts tts.Provider
}

func NewSpeechHandler(p tts.Provider) *SpeechHandler {
	return &SpeechHandler{tts: p}
}

// Synthesize converts text to audio so learners can hear a reference
// pronunciation.
func (h *SpeechHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req tts.SynthesisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Input == "" {
		writeError(w, http.StatusBadRequest, "input text required")
		return
	}
	if req.Speed < 0 || req.Speed > 4 {
		writeError(w, http.StatusBadRequest, "speed must be between 0 and 4")
		return
	}

	result, err := h.tts.Synthesize(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(result.Audio)
}
