package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/cascade/internal/app/codec"
	"github.com/tutu-network/cascade/internal/domain"
)

// ─── Dependencies ───────────────────────────────────────────────────────────

// addDependencyRequest takes either structured fields or a compact
// descriptor attached to Successor.
type addDependencyRequest struct {
	Predecessor string `json:"predecessor"`
	Successor   string `json:"successor"`
	Type        string `json:"type"`
	Lag         int    `json:"lag"`
	Descriptor  any    `json:"descriptor"`
}

// edge keeps an unrecognized type as written; the service stores it as FS
// and returns a warning.
func (r addDependencyRequest) edge() (domain.Edge, error) {
	if r.Descriptor != nil {
		d, err := codec.Decode(r.Descriptor)
		if err != nil {
			return domain.Edge{}, err
		}
		return d.EdgeAsWritten(domain.TaskID(r.Successor)), nil
	}
	return domain.Edge{
		PredecessorID: domain.TaskID(r.Predecessor),
		SuccessorID:   domain.TaskID(r.Successor),
		Type:          domain.DepType(r.Type),
		LagDays:       r.Lag,
	}, nil
}

func (s *Server) handleAddDependency(w http.ResponseWriter, r *http.Request) {
	var req addDependencyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Successor == "" {
		writeError(w, http.StatusBadRequest, "successor is required", "MalformedDescriptor")
		return
	}
	e, err := req.edge()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	res, err := s.svc.AddDependency(r.Context(), actor(r), scopeParam(r), e)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !res.Accepted {
		writeJSON(w, http.StatusConflict, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleRemoveDependency(w http.ResponseWriter, r *http.Request) {
	pred := domain.TaskID(chi.URLParam(r, "pred"))
	succ := domain.TaskID(chi.URLParam(r, "succ"))

	out, err := s.svc.RemoveDependency(r.Context(), actor(r), scopeParam(r), pred, succ)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// dependencyView is an edge with its compact and display renderings.
type dependencyView struct {
	domain.Edge
	Descriptor string `json:"descriptor"`
	Display    string `json:"display"`
}

func (s *Server) handleListDependencies(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.LoadScope(r.Context(), scopeParam(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	names := make(map[domain.TaskID]string, len(snap.Tasks))
	for _, t := range snap.Tasks {
		names[t.ID] = t.Name
	}
	lookup := codec.MapLookup(names)

	views := make([]dependencyView, 0, len(snap.Edges))
	for _, e := range snap.Edges {
		views = append(views, dependencyView{Edge: e, Descriptor: codec.Encode(e), Display: codec.Format(e, lookup)})
	}
	warnings := make([]string, 0, len(snap.Warnings))
	for _, wn := range snap.Warnings {
		warnings = append(warnings, wn.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{"dependencies": views, "warnings": warnings})
}

// ─── Schedule ───────────────────────────────────────────────────────────────

func (s *Server) handleCriticalPath(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.svc.CriticalPath(r.Context(), scopeParam(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"critical_path": schedules})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.svc.Refresh(r.Context(), actor(r), scopeParam(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"critical_path": schedules})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", "")
			return
		}
		limit = n
	}
	scope := scopeParam(r)
	if _, err := s.store.GetScope(r.Context(), scope); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	entries, err := s.store.AuditLog(r.Context(), scope, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
