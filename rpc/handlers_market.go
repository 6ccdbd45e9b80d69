package rpc

import (
	"encoding/hex"
	"net/http"

	"taskmarket/native/market"
	"taskmarket/rpc/middleware"
)

type postTaskRequest struct {
	ListingID     uint64 `json:"listingId"`
	TaskURI       string `json:"taskUri"`
	ProposedUnits uint64 `json:"proposedUnits"`
}

func (s *Server) handlePostTask(w http.ResponseWriter, r *http.Request) {
	buyer, err := decodeAddr(middleware.CallerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	var req postTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	task, err := s.module.Market.PostTask(buyer, req.ListingID, req.TaskURI, req.ProposedUnits)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewTask(task))
}

func (s *Server) handleAcceptTask(w http.ResponseWriter, r *http.Request) {
	s.taskAction(w, r, func(caller [20]byte, taskID uint64) (*market.Task, error) {
		return s.module.Market.AcceptTask(caller, taskID)
	})
}

type proposeQuoteRequest struct {
	QuotedUnits      uint64 `json:"quotedUnits"`
	QuotedTotalPrice string `json:"quotedTotalPrice"`
	QuoteExpiry      int64  `json:"quoteExpiry"`
}

func (s *Server) handleProposeQuote(w http.ResponseWriter, r *http.Request) {
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
	var req proposeQuoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.QuotedTotalPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	task, err := s.module.Market.ProposeQuote(caller, taskID, req.QuotedUnits, amount, req.QuoteExpiry)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTask(task))
}

func (s *Server) handleSellerCancelQuote(w http.ResponseWriter, r *http.Request) {
	s.taskVoidAction(w, r, s.module.Market.SellerCancelQuote)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	s.taskVoidAction(w, r, s.module.Market.CancelTask)
}

func (s *Server) handleFundSellerBond(w http.ResponseWriter, r *http.Request) {
	s.taskAction(w, r, s.module.Market.FundSellerBond)
}

func (s *Server) handleFundTask(w http.ResponseWriter, r *http.Request) {
	s.taskAction(w, r, s.module.Market.FundTask)
}

func (s *Server) handleAcceptQuote(w http.ResponseWriter, r *http.Request) {
	s.taskAction(w, r, s.module.Market.AcceptQuote)
}

type submitDeliverableRequest struct {
	ArtifactURI  string `json:"artifactUri"`
	ArtifactHash string `json:"artifactHash"`
}

func (s *Server) handleSubmitDeliverable(w http.ResponseWriter, r *http.Request) {
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
	var req submitDeliverableRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	var hash [32]byte
	if req.ArtifactHash != "" {
		decoded, err := hex.DecodeString(req.ArtifactHash)
		if err != nil || len(decoded) != 32 {
			writeError(w, errInvalidArtifactHash)
			return
		}
		copy(hash[:], decoded)
	}
	task, err := s.module.Market.SubmitDeliverable(caller, taskID, req.ArtifactURI, hash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTask(task))
}

func (s *Server) handleAcceptSubmission(w http.ResponseWriter, r *http.Request) {
	s.taskAction(w, r, s.module.Market.AcceptSubmission)
}

func (s *Server) handleSettleAfterTimeout(w http.ResponseWriter, r *http.Request) {
	s.permissionlessTaskAction(w, r, s.module.Market.SettleAfterTimeout)
}

type disputeSubmissionRequest struct {
	DisputeURI string `json:"disputeUri"`
}

func (s *Server) handleDisputeSubmission(w http.ResponseWriter, r *http.Request) {
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
	var req disputeSubmissionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	task, err := s.module.Market.DisputeSubmission(caller, taskID, req.DisputeURI)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTask(task))
}

func (s *Server) handleSettleAfterPostDisputeTimeout(w http.ResponseWriter, r *http.Request) {
	s.permissionlessTaskAction(w, r, s.module.Market.SettleAfterPostDisputeTimeout)
}

func (s *Server) handleCancelForNonDelivery(w http.ResponseWriter, r *http.Request) {
	s.taskAction(w, r, s.module.Market.CancelForNonDelivery)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseIDParam(r, "id")
	if err != nil {
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

// taskAction dispatches a caller-scoped mutation that returns the updated
// task, shared by every route whose engine signature is (caller, taskID).
func (s *Server) taskAction(w http.ResponseWriter, r *http.Request, fn func(caller [20]byte, taskID uint64) (*market.Task, error)) {
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
	task, err := fn(caller, taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTask(task))
}

// taskVoidAction dispatches a caller-scoped mutation with no returned task
// (sellerCancelQuote, cancelTask), reloading the task afterward for the
// response body.
func (s *Server) taskVoidAction(w http.ResponseWriter, r *http.Request, fn func(caller [20]byte, taskID uint64) error) {
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
	if err := fn(caller, taskID); err != nil {
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

// permissionlessTaskAction dispatches the liveness-guaranteeing routes any
// caller may invoke once a deadline has passed.
func (s *Server) permissionlessTaskAction(w http.ResponseWriter, r *http.Request, fn func(taskID uint64) (*market.Task, error)) {
	taskID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	task, err := fn(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTask(task))
}
