package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/thehoang-x-five/Rag-OCR/internal/enhance"
)

// enhanceRequest is the wire form of one enhancement call.
type enhanceRequest struct {
	Text            string `json:"text"`
	DocumentType    string `json:"documentType,omitempty"`
	ImageBase64     string `json:"imageBase64,omitempty"`
	PreferVision    bool   `json:"preferVision,omitempty"`
	AlreadyEnhanced bool   `json:"alreadyEnhanced,omitempty"`
	TargetLanguage  string `json:"targetLanguage,omitempty"`
}

// providerRecord is one row of the health snapshot.
type providerRecord struct {
	Status              string `json:"status"`
	ResponseTimeMs      *int64 `json:"responseTimeMs"`
	CooldownRemainingMs *int64 `json:"cooldownRemainingMs"`
	SupportsVision      bool   `json:"supportsVision"`
}

type providersResponse struct {
	Providers map[string]providerRecord `json:"providers"`
	Preferred string                    `json:"preferred,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleEnhance runs one enhancement request end to end. Provider failure
// is not an HTTP error: the result still carries the original text.
func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req enhanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "Text required", http.StatusBadRequest)
		return
	}

	var image []byte
	if req.ImageBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			http.Error(w, "Invalid image encoding", http.StatusBadRequest)
			return
		}
		image = decoded
	}

	result := s.orchestrator.Enhance(r.Context(), enhance.Request{
		Text:            req.Text,
		DocumentType:    req.DocumentType,
		Image:           image,
		PreferVision:    req.PreferVision,
		AlreadyEnhanced: req.AlreadyEnhanced,
		TargetLanguage:  req.TargetLanguage,
	})

	writeJSON(w, http.StatusOK, result)
}

// handleProviders serves the provider status snapshot.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := time.Now()
	snapshot := s.manager.Registry().StatusSnapshot()

	resp := providersResponse{
		Providers: make(map[string]providerRecord, len(snapshot)),
		Preferred: s.manager.Preferred(),
	}
	for name, status := range snapshot {
		rec := providerRecord{
			Status:         status.StateLabel(now),
			SupportsVision: status.SupportsVision,
		}
		if status.LastLatency > 0 {
			ms := status.LastLatency.Milliseconds()
			rec.ResponseTimeMs = &ms
		}
		if remaining := status.CooldownRemaining(now); remaining > 0 && !status.DisabledForSession() {
			ms := remaining.Milliseconds()
			rec.CooldownRemainingMs = &ms
		}
		resp.Providers[name] = rec
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleHealthz is the liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
