package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/accentcoach/internal/accent"
	"github.com/nikhilbhutani/accentcoach/internal/audio"
	"github.com/nikhilbhutani/accentcoach/internal/cache"
	"github.com/nikhilbhutani/accentcoach/internal/history"
	"github.com/nikhilbhutani/accentcoach/internal/multimodal/stt"
	"github.com/nikhilbhutani/accentcoach/internal/queue"
)

type fakeDetector struct {
	res *accent.Result
	err error
	got []byte
}

func (f *fakeDetector) Detect(_ context.Context, raw []byte) (*accent.Result, error) {
	f.got = raw
	return f.res, f.err
}

func (f *fakeDetector) Candidates() []accent.Candidate {
	return accent.DefaultCandidates()
}

type fakeHistory struct {
	saved []*history.Record
	query history.Query
}

func (f *fakeHistory) Save(_ context.Context, rec *history.Record) error {
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeHistory) Recent(_ context.Context, q history.Query) ([]history.Record, error) {
	f.query = q
	out := make([]history.Record, len(f.saved))
	for i, r := range f.saved {
		out[i] = *r
	}
	return out, nil
}

type fakeEnqueuer struct {
	payloads []queue.AccentDetectPayload
	err      error
}

func (f *fakeEnqueuer) EnqueueAccentDetect(_ context.Context, p queue.AccentDetectPayload) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, p)
	return nil
}

func uploadRequest(t *testing.T, target, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="audio"; filename="clip.wav"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func ranked(t *testing.T, js string) accent.Probabilities {
	t.Helper()
	var p accent.Probabilities
	if err := json.Unmarshal([]byte(js), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return p
}

func accentRouter(h *AccentHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/detect-accent", h.Detect)
	r.Post("/jobs", h.CreateJob)
	r.Get("/jobs/{id}", h.GetJob)
	r.Get("/candidates", h.Candidates)
	r.Get("/history", h.History)
	return r
}

func TestDetectReturnsOrderedProbabilities(t *testing.T) {
	det := &fakeDetector{res: &accent.Result{
		Probabilities: ranked(t, `{"British English": 52.5, "American English": 30, "Indian English": 17.5}`),
		Candidates: []accent.ScoredCandidate{
			{Label: "British English", Locale: "en-GB", Outcome: stt.KindRecognized, Transcript: "hello there"},
		},
	}}
	hist := &fakeHistory{}
	h := NewAccentHandler(det, 1<<20, WithHistory(hist))

	rec := httptest.NewRecorder()
	accentRouter(h).ServeHTTP(rec, uploadRequest(t, "/detect-accent", "audio/wav", []byte("RIFF....")))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	want := `{"British English":52.5,"American English":30,"Indian English":17.5}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Fatalf("body = %s, want %s", got, want)
	}
	if string(det.got) != "RIFF...." {
		t.Fatalf("detector got %q", det.got)
	}
	if rec.Header().Get(diagnosticsHeader) != "" {
		t.Fatal("diagnostics header should only be set in debug mode")
	}
	if len(hist.saved) != 1 || hist.saved[0].TopLabel != "British English" || hist.saved[0].Source != history.SourceSync {
		t.Fatalf("history = %+v", hist.saved)
	}
}

func TestDetectDebugHeader(t *testing.T) {
	det := &fakeDetector{res: &accent.Result{
		Probabilities: ranked(t, `{"British English": 100}`),
		Candidates: []accent.ScoredCandidate{
			{Label: "British English", Locale: "en-GB", Outcome: stt.KindRecognized, Transcript: "cheers mate", RawScore: 4.2},
		},
	}}
	rec := httptest.NewRecorder()
	accentRouter(NewAccentHandler(det, 0)).ServeHTTP(rec, uploadRequest(t, "/detect-accent?debug=true", "audio/webm", []byte("x")))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var diag []accent.ScoredCandidate
	if err := json.Unmarshal([]byte(rec.Header().Get(diagnosticsHeader)), &diag); err != nil {
		t.Fatalf("diagnostics header: %v", err)
	}
	if len(diag) != 1 || diag[0].Transcript != "cheers mate" || diag[0].Outcome != stt.KindRecognized {
		t.Fatalf("diagnostics = %+v", diag)
	}
}

func TestDetectRejectsBadUploads(t *testing.T) {
	det := &fakeDetector{res: &accent.Result{}}
	router := accentRouter(NewAccentHandler(det, 1<<20))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/detect-accent", "text/plain", []byte("hello")))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "File must be an audio file") {
		t.Fatalf("non-audio: status %d body %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/detect-accent", strings.NewReader("{}")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing field: status %d", rec.Code)
	}
	if det.got != nil {
		t.Fatal("detector should not run for rejected uploads")
	}
}

func TestDetectErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		prefix string
	}{
		{"unsupported", fmt.Errorf("decode: %w", audio.ErrUnsupportedFormat), http.StatusBadRequest, "decode"},
		{"aggregation", fmt.Errorf("%w: no candidates configured", accent.ErrAggregation), http.StatusInternalServerError, "accent detection failed: "},
		{"canceled", context.Canceled, http.StatusServiceUnavailable, "accent detection was canceled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := &fakeDetector{err: tt.err}
			rec := httptest.NewRecorder()
			accentRouter(NewAccentHandler(det, 0)).ServeHTTP(rec, uploadRequest(t, "/detect-accent", "audio/wav", []byte("x")))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			var body map[string]string
			json.Unmarshal(rec.Body.Bytes(), &body)
			if !strings.HasPrefix(body["error"], tt.prefix) {
				t.Fatalf("error = %q, want prefix %q", body["error"], tt.prefix)
			}
		})
	}
}

func TestJobEndpoints(t *testing.T) {
	jobs := queue.NewJobStore(cache.NewMemory(16, time.Minute), time.Minute)
	enq := &fakeEnqueuer{}
	router := accentRouter(NewAccentHandler(&fakeDetector{}, 1<<20, WithJobs(jobs, enq)))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/jobs", "audio/ogg", []byte("clip")))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body)
	}
	var created map[string]string
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created["status"] != string(queue.StatusQueued) || created["job_id"] == "" {
		t.Fatalf("create body = %v", created)
	}
	if len(enq.payloads) != 1 || enq.payloads[0].JobID != created["job_id"] || string(enq.payloads[0].Audio) != "clip" {
		t.Fatalf("enqueued = %+v", enq.payloads)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+created["job_id"], nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"queued"`) {
		t.Fatalf("get: status %d body %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job: status %d", rec.Code)
	}
}

func TestCreateJobEnqueueFailure(t *testing.T) {
	mem := cache.NewMemory(16, time.Minute)
	jobs := queue.NewJobStore(mem, time.Minute)
	router := accentRouter(NewAccentHandler(&fakeDetector{}, 0, WithJobs(jobs, &fakeEnqueuer{err: errors.New("redis down")})))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/jobs", "audio/wav", []byte("clip")))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if mem.Len() != 0 {
		t.Fatalf("unqueued job should be removed, %d entries left", mem.Len())
	}
}

func TestOptionalFeaturesUnavailable(t *testing.T) {
	router := accentRouter(NewAccentHandler(&fakeDetector{}, 0))
	for _, req := range []*http.Request{
		uploadRequest(t, "/jobs", "audio/wav", []byte("clip")),
		httptest.NewRequest(http.MethodGet, "/jobs/abc", nil),
		httptest.NewRequest(http.MethodGet, "/history", nil),
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: status %d, want 503", req.Method, req.URL.Path, rec.Code)
		}
	}
}

func TestCandidatesAndHistory(t *testing.T) {
	hist := &fakeHistory{}
	router := accentRouter(NewAccentHandler(&fakeDetector{}, 0, WithHistory(hist)))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/candidates", nil))
	var body struct {
		Candidates []accent.Candidate `json:"candidates"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Candidates) != len(accent.DefaultCandidates()) {
		t.Fatalf("got %d candidates", len(body.Candidates))
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?limit=5&offset=10", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"detections":[]`) {
		t.Fatalf("history: status %d body %s", rec.Code, rec.Body)
	}
	if hist.query.Limit != 5 || hist.query.Offset != 10 || hist.query.Subject != "" {
		t.Fatalf("query = %+v", hist.query)
	}
}
