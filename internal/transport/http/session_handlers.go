package http

import (
	"crypto/subtle"
	"net/http"

	"hitest/internal/app"
	"hitest/internal/auth"
	"hitest/internal/domain"
)

// Prolific appends these to the study URL.
var prolificParams = []string{"PROLIFIC_PID", "STUDY_ID", "SESSION_ID"}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var in app.StartInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if in.UserAgent == nil {
		if ua := r.UserAgent(); ua != "" {
			in.UserAgent = &ua
		}
	}
	session, err := s.svc.Sessions.Start(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	var in app.CompleteInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Sessions.Complete(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "flagged": res.Flagged})
}

func (s *Server) handleSetValidity(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Validity domain.Validity `json:"validity"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := s.svc.Sessions.SetValidity(r.Context(), r.PathValue("id"), in.Validity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": map[string]any{"id": session.ID, "validity": session.Validity},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if s.opts.AdminPassword == "" {
		writeError(w, r, domain.NewNotConfiguredError("ADMIN_PASSWORD not configured"))
		return
	}
	if subtle.ConstantTimeCompare([]byte(in.Password), []byte(s.opts.AdminPassword)) != 1 {
		writeError(w, r, domain.NewUnauthorizedError("Invalid password"))
		return
	}
	if err := s.signer.IssueCookie(w, s.opts.SecureCookies); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Analytics.Dashboard(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type participantBootstrap struct {
	Test          domain.Test `json:"test"`
	ProlificPID   string      `json:"prolificPid"`
	StudyID       string      `json:"studyId"`
	SessionID     string      `json:"sessionId"`
	CompletionURL string      `json:"completionUrl"`
}

// handleParticipantEntry is the Prolific landing URL. Missing query parameters
// redirect instead of failing so participants see instructions.
func (s *Server) handleParticipantEntry(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	for _, p := range prolificParams {
		if q.Get(p) == "" {
			http.Redirect(w, r, "/missing-params", http.StatusFound)
			return
		}
	}
	test, err := s.svc.Tests.ForParticipant(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, participantBootstrap{
		Test:          test,
		ProlificPID:   q.Get("PROLIFIC_PID"),
		StudyID:       q.Get("STUDY_ID"),
		SessionID:     q.Get("SESSION_ID"),
		CompletionURL: app.CompletionURL(test.CompletionCode),
	})
}

func (s *Server) handleMissingParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":    "This study link is missing Prolific parameters. Please return to Prolific and open the study again.",
		"required": prolificParams,
	})
}
