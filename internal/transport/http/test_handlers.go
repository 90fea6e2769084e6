package http

import (
	"net/http"

	"hitest/internal/app"
)

func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := s.svc.Tests.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tests": tests})
}

func (s *Server) handleCreateTest(w http.ResponseWriter, r *http.Request) {
	var in app.CreateTestInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	test, err := s.svc.Tests.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"test": test})
}

// handleGetTest serves admins, or anyone with ?public=1 when the test is published.
func (s *Server) handleGetTest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if r.URL.Query().Get("public") == "1" {
		test, err := s.svc.Tests.GetPublic(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"test": test})
		return
	}
	s.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
		test, err := s.svc.Tests.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"test": test})
	})(w, r)
}

func (s *Server) handleUpdateTest(w http.ResponseWriter, r *http.Request) {
	var in app.UpdateTestInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	test, err := s.svc.Tests.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"test": test})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var in app.TaskInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	task, err := s.svc.Tests.AddTask(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var in app.TaskPatch
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	task, err := s.svc.Tests.UpdateTask(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

type idBody struct {
	ID string `json:"id"`
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	var in idBody
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Tests.RemoveTask(r.Context(), r.PathValue("id"), in.ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var in app.QuestionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	q, err := s.svc.Tests.AddQuestion(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"question": q})
}

func (s *Server) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var in app.QuestionPatch
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	q, err := s.svc.Tests.UpdateQuestion(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"question": q})
}

func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	var in idBody
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Tests.RemoveQuestion(r.Context(), r.PathValue("id"), in.ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleTestAnalytics(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Analytics.ForTest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	export, err := s.svc.Exports.Export(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+export.Filename)
	w.WriteHeader(http.StatusOK)
	w.Write(export.Data)
}
