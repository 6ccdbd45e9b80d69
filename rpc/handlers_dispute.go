package rpc

import (
	"net/http"

	"taskmarket/native/dispute"
	"taskmarket/rpc/middleware"
)

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	caller, err := decodeAddr(middleware.CallerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	taskID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req resolveDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	outcome, err := parseOutcome(req.Outcome)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.module.Dispute.ResolveDispute(caller, taskID, outcome, req.ResolutionURI); err != nil {
		writeError(w, err)
		return
	}
	task, err := s.module.Market.GetTask(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTask(task))
}

type resolveDisputeRequest struct {
	Outcome       string `json:"outcome"`
	ResolutionURI string `json:"resolutionUri"`
}

func (s *Server) handleGetDisputeRecord(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	record, err := s.module.Dispute.GetDisputeRecord(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewDisputeRecord(record))
}

type setResolverRequest struct {
	Resolver string `json:"resolver"`
	Approved bool   `json:"approved"`
}

func (s *Server) handleSetResolver(w http.ResponseWriter, r *http.Request) {
	caller, err := decodeAddr(middleware.CallerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	var req setResolverRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	resolver, err := decodeAddr(req.Resolver)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.module.Dispute.SetResolver(caller, resolver, req.Approved); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"approved": req.Approved})
}

func parseOutcome(s string) (dispute.Outcome, error) {
	switch s {
	case "SELLER_WINS":
		return dispute.OutcomeSellerWins, nil
	case "BUYER_WINS":
		return dispute.OutcomeBuyerWins, nil
	case "SPLIT":
		return dispute.OutcomeSplit, nil
	case "CANCEL":
		return dispute.OutcomeCancel, nil
	default:
		return 0, errInvalidOutcome
	}
}
