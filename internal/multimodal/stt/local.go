package stt

// LocalConfig holds configuration for the local whisper.cpp STT backend.
type LocalConfig struct {
	BaseURL string // default: "http://localhost:8178"
}

// LocalRecognizer wraps OpenAIRecognizer pointing at a local whisper.cpp server.
// Start the server with: ./server -m models/ggml-base.en.bin --port 8178
type LocalRecognizer struct {
	*OpenAIRecognizer
}

// NewLocalRecognizer creates a LocalRecognizer backed by a local whisper.cpp HTTP server.
func NewLocalRecognizer(cfg LocalConfig) *LocalRecognizer {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:8178"
	}
	return &LocalRecognizer{
		OpenAIRecognizer: NewOpenAIRecognizer(OpenAIConfig{
			BaseURL: baseURL,
			// No API key needed for local server
		}),
	}
}

func (l *LocalRecognizer) Name() string { return "local-whisper" }
