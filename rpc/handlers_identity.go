package rpc

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"taskmarket/rpc/middleware"
)

type registerAgentRequest struct {
	URI string `json:"uri"`
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	caller, err := decodeAddr(middleware.CallerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	var req registerAgentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	agent, err := s.module.Identity.RegisterAgent(caller, req.URI)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewAgent(agent))
}

type setAgentURIRequest struct {
	URI string `json:"uri"`
}

func (s *Server) handleSetAgentURI(w http.ResponseWriter, r *http.Request) {
	caller, err := decodeAddr(middleware.CallerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	agentID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req setAgentURIRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.module.Identity.SetAgentURI(caller, agentID, req.URI); err != nil {
		writeError(w, err)
		return
	}
	agent, err := s.module.Identity.GetAgent(agentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAgent(agent))
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agentID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	agent, err := s.module.Identity.GetAgent(agentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAgent(agent))
}

func parseIDParam(r *http.Request, name string) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, name), 10, 64)
}
