package rpc

import (
	"fmt"
	"net/http"

	"taskmarket/rpc/middleware"
)

// disputeModuleAdminRequest selects one of the three sub-operations of the
// timelocked dispute-module upgrade state machine via the action field,
// grounded on the expanded spec's RPC surface note that a single admin
// route multiplexes setDisputeModule/cancelDisputeModuleUpdate/
// executeDisputeModuleUpdate.
type disputeModuleAdminRequest struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
}

func (s *Server) handleDisputeModuleAdmin(w http.ResponseWriter, r *http.Request) {
	caller, err := decodeAddr(middleware.CallerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	var req disputeModuleAdminRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	switch req.Action {
	case "set":
		target, err := decodeAddr(req.Target)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.module.Market.SetDisputeModule(caller, target); err != nil {
			writeError(w, err)
			return
		}
	case "cancel":
		if err := s.module.Market.CancelDisputeModuleUpdate(caller); err != nil {
			writeError(w, err)
			return
		}
	case "execute":
		if err := s.module.Market.ExecuteDisputeModuleUpdate(caller); err != nil {
			writeError(w, err)
			return
		}
	default:
		writeError(w, fmt.Errorf("rpc: unknown dispute module admin action %q", req.Action))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"action": req.Action})
}

type proposeAdminRequest struct {
	Next string `json:"next"`
}

func (s *Server) handleProposeAdmin(w http.ResponseWriter, r *http.Request) {
	caller, err := decodeAddr(middleware.CallerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	var req proposeAdminRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	next, err := decodeAddr(req.Next)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.module.Market.ProposeAdmin(caller, next); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pendingAdmin": req.Next})
}

func (s *Server) handleAcceptAdmin(w http.ResponseWriter, r *http.Request) {
	caller, err := decodeAddr(middleware.CallerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.module.Market.AcceptAdmin(caller); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"admin": encodeAddr(caller)})
}
