package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"madrasa-audio/config"
	"madrasa-audio/gemini"
	"madrasa-audio/messages"
	"madrasa-audio/prefs"

	"github.com/bytedance/sonic"
	"google.golang.org/genai"
)

const maxRequestBody = 20 * 1024 * 1024 // recordings and PDFs come in base64

// APIServer exposes the one-shot study endpoints: verse analysis, hifz
// coaching, recitation audit, tafsir, grammar, translation, text extraction,
// speech synthesis, and the saved Tajweed rules.
type APIServer struct {
	httpServer *http.Server
	analyzer   *gemini.Analyzer
	store      *prefs.Store
	config     *config.Config
}

func NewServerAPI(cfg *config.Config, analyzer *gemini.Analyzer, store *prefs.Store) *APIServer {
	s := &APIServer{
		analyzer: analyzer,
		store:    store,
		config:   cfg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/analyze", s.withCORS(s.handleAnalyze))
	mux.HandleFunc("/api/hifz", s.withCORS(s.handleHifz))
	mux.HandleFunc("/api/audit", s.withCORS(s.handleAudit))
	mux.HandleFunc("/api/tafsir", s.withCORS(s.handleTafsir))
	mux.HandleFunc("/api/grammar", s.withCORS(s.handleGrammar))
	mux.HandleFunc("/api/translate", s.withCORS(s.handleTranslate))
	mux.HandleFunc("/api/extract", s.withCORS(s.handleExtract))
	mux.HandleFunc("/api/speech", s.withCORS(s.handleSpeech))
	mux.HandleFunc("/api/rules", s.withCORS(s.handleRules))
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.APIPort),
		Handler: mux,
		// Thinking-budget calls can run for minutes; only bound the read side.
		ReadTimeout: 30 * time.Second,
	}

	return s
}

// Start begins listening for connections
func (s *APIServer) Start() error {
	log.Printf("🚀 API server starting on port %d", s.config.APIPort)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *APIServer) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

func (s *APIServer) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range s.config.AllowedOrigins {
			if allowed == "*" || allowed == origin {
				w.Header().Set("Access-Control-Allow-Origin", allowed)
				break
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (s *APIServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	payload, _, ok := s.readAnalysisRequest(w, r)
	if !ok {
		return
	}
	words, err := s.analyzer.AnalyzeVerse(r.Context(), payload)
	if err != nil {
		s.writeRemoteError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, words)
}

func (s *APIServer) handleHifz(w http.ResponseWriter, r *http.Request) {
	payload, req, ok := s.readAnalysisRequest(w, r)
	if !ok {
		return
	}
	rules := req.CustomRules
	if rules == "" {
		rules = s.store.Rules()
	}
	challenge, err := s.analyzer.AnalyzeHifzChallenge(r.Context(), payload, rules)
	if err != nil {
		s.writeRemoteError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, challenge)
}

func (s *APIServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, messages.ErrCodeInvalidMessage, "POST required")
		return
	}
	var req messages.AuditRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Recording.Data)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, messages.ErrCodeInvalidMessage, "invalid base64 recording")
		return
	}
	rules := req.CustomRules
	if rules == "" {
		rules = s.store.Rules()
	}
	feedback, err := s.analyzer.AuditRecitation(r.Context(), req.VerseText,
		&genai.Blob{Data: data, MIMEType: req.Recording.MimeType}, rules)
	if err != nil {
		s.writeRemoteError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, feedback)
}

func (s *APIServer) handleTafsir(w http.ResponseWriter, r *http.Request) {
	payload, _, ok := s.readAnalysisRequest(w, r)
	if !ok {
		return
	}
	tafsir, err := s.analyzer.GenerateTafsir(r.Context(), payload)
	if err != nil {
		s.writeRemoteError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tafsir)
}

func (s *APIServer) handleGrammar(w http.ResponseWriter, r *http.Request) {
	payload, _, ok := s.readAnalysisRequest(w, r)
	if !ok {
		return
	}
	text, err := s.analyzer.AnalyzeGrammar(r.Context(), payload)
	if err != nil {
		s.writeRemoteError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messages.TextResponse{Text: text})
}

func (s *APIServer) handleTranslate(w http.ResponseWriter, r *http.Request) {
	payload, _, ok := s.readAnalysisRequest(w, r)
	if !ok {
		return
	}
	text, err := s.analyzer.TranslateVerse(r.Context(), payload)
	if err != nil {
		s.writeRemoteError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messages.TextResponse{Text: text})
}

func (s *APIServer) handleExtract(w http.ResponseWriter, r *http.Request) {
	payload, _, ok := s.readAnalysisRequest(w, r)
	if !ok {
		return
	}
	text, err := s.analyzer.ExtractText(r.Context(), payload)
	if err != nil {
		s.writeRemoteError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messages.TextResponse{Text: text})
}

func (s *APIServer) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, messages.ErrCodeInvalidMessage, "POST required")
		return
	}
	var req messages.SpeechRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" {
		s.writeError(w, http.StatusBadRequest, messages.ErrCodeInvalidMessage, "text is required")
		return
	}
	data, err := s.analyzer.Synthesize(r.Context(), req.Text)
	if err != nil {
		s.writeRemoteError(w, err)
		return
	}
	// No audio is a valid outcome: the client clears its playing indicator.
	resp := messages.SpeechResponse{}
	if len(data) > 0 {
		resp.Data = base64.StdEncoding.EncodeToString(data)
		resp.MimeType = messages.PlaybackMimeType
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, messages.RulesPayload{Rules: s.store.Rules()})

	case http.MethodPut, http.MethodPost:
		var req messages.RulesPayload
		if !s.decodeBody(w, r, &req) {
			return
		}
		if err := s.store.SetRules(r.Context(), req.Rules); err != nil {
			s.writeError(w, http.StatusInternalServerError, messages.ErrCodeSessionFailed, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, messages.RulesPayload{Rules: s.store.Rules()})

	case http.MethodDelete:
		if err := s.store.Clear(r.Context()); err != nil {
			s.writeError(w, http.StatusInternalServerError, messages.ErrCodeSessionFailed, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		s.writeError(w, http.StatusMethodNotAllowed, messages.ErrCodeInvalidMessage, "unsupported method")
	}
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

// readAnalysisRequest decodes the shared request shape and converts it to a
// payload. Writes the error response itself when the request is unusable.
func (s *APIServer) readAnalysisRequest(w http.ResponseWriter, r *http.Request) (gemini.Payload, *messages.AnalysisRequest, bool) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, messages.ErrCodeInvalidMessage, "POST required")
		return gemini.Payload{}, nil, false
	}
	var req messages.AnalysisRequest
	if !s.decodeBody(w, r, &req) {
		return gemini.Payload{}, nil, false
	}

	switch {
	case req.Inline != nil:
		data, err := base64.StdEncoding.DecodeString(req.Inline.Data)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, messages.ErrCodeInvalidMessage, "invalid base64 inline data")
			return gemini.Payload{}, nil, false
		}
		return gemini.InlinePayload(data, req.Inline.MimeType), &req, true
	case req.Text != "":
		return gemini.TextPayload(req.Text), &req, true
	default:
		s.writeError(w, http.StatusBadRequest, messages.ErrCodeInvalidMessage, "either text or inline content is required")
		return gemini.Payload{}, nil, false
	}
}

func (s *APIServer) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, messages.ErrCodeInvalidMessage, "failed to read request body")
		return false
	}
	if err := sonic.Unmarshal(body, dst); err != nil {
		s.writeError(w, http.StatusBadRequest, messages.ErrCodeInvalidMessage, "invalid JSON body")
		return false
	}
	return true
}

func (s *APIServer) writeRemoteError(w http.ResponseWriter, err error) {
	log.Printf("❌ API remote call failed: %v", err)
	if errors.Is(err, gemini.ErrNoContent) {
		s.writeError(w, http.StatusUnprocessableEntity, messages.ErrCodeNoContent, err.Error())
		return
	}
	s.writeError(w, http.StatusBadGateway, messages.ErrCodeGeminiError, err.Error())
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, code, msg string) {
	s.writeJSON(w, status, messages.ErrorPayload{Code: code, Message: msg})
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := sonic.Marshal(body)
	if err != nil {
		http.Error(w, "encoding failure", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
