package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tutu-network/cascade/internal/app/schedule"
	"github.com/tutu-network/cascade/internal/domain"
)

// ─── Scopes ─────────────────────────────────────────────────────────────────

type createScopeRequest struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Kind  string  `json:"kind"`
	Start *string `json:"start"`
	End   *string `json:"end"`
}

func (s *Server) handleCreateScope(w http.ResponseWriter, r *http.Request) {
	var req createScopeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sc := domain.Scope{ID: domain.ScopeID(req.ID), Name: req.Name, Kind: domain.ScopeKind(req.Kind)}
	if sc.ID == "" {
		sc.ID = domain.ScopeID(uuid.NewString())
	}
	switch sc.Kind {
	case "", domain.ScopeProject, domain.ScopeTemplate:
	default:
		writeError(w, http.StatusBadRequest, "unknown scope kind "+req.Kind, "InvalidTask")
		return
	}
	var err error
	if sc.Start, err = parseDate(req.Start); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if sc.End, err = parseDate(req.End); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if err := s.store.CreateScope(r.Context(), sc); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	created, err := s.store.GetScope(r.Context(), sc.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.log.Info("scope created", "scope", sc.ID, "actor", actor(r))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListScopes(w http.ResponseWriter, r *http.Request) {
	scopes, err := s.store.ListScopes(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if scopes == nil {
		scopes = []domain.Scope{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scopes": scopes})
}

func (s *Server) handleGetScope(w http.ResponseWriter, r *http.Request) {
	sc, err := s.store.GetScope(r.Context(), scopeParam(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// ─── Tasks ──────────────────────────────────────────────────────────────────

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(r.Context(), scopeParam(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

type putTaskRequest struct {
	Name     string  `json:"name"`
	Start    *string `json:"start"`
	End      *string `json:"end"`
	Duration *int    `json:"duration"`
	Pinned   bool    `json:"pinned"`
	Status   string  `json:"status"`
}

// handlePutTask creates a task (201) or updates an existing one (200).
// Metadata and date edits are validated together and committed together;
// date edits cascade to dependents.
func (s *Server) handlePutTask(w http.ResponseWriter, r *http.Request) {
	var req putTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	u := schedule.TaskUpdate{
		TaskID:   domain.TaskID(chi.URLParam(r, "task")),
		Name:     req.Name,
		Pinned:   req.Pinned,
		Status:   domain.TaskStatus(req.Status),
		Duration: req.Duration,
	}
	var err error
	if u.Start, err = parseDate(req.Start); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if u.End, err = parseDate(req.End); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	res, err := s.svc.PutTask(r.Context(), actor(r), scopeParam(r), u)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

type datesRequest struct {
	Start    *string `json:"start"`
	End      *string `json:"end"`
	Duration *int    `json:"duration"`
}

func (s *Server) handleTaskDates(w http.ResponseWriter, r *http.Request) {
	var req datesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ch := schedule.DateChange{TaskID: domain.TaskID(chi.URLParam(r, "task")), Duration: req.Duration}
	var err error
	if ch.Start, err = parseDate(req.Start); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if ch.End, err = parseDate(req.End); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	out, err := s.svc.TaskDatesChanged(r.Context(), actor(r), scopeParam(r), ch)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
