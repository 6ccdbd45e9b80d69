package rpc

import (
	"encoding/hex"
	"fmt"
	"net/http"

	"taskmarket/native/listing"
	"taskmarket/rpc/middleware"
)

type createListingRequest struct {
	AgentID uint64           `json:"agentId"`
	URI     string           `json:"uri"`
	Pricing pricingRequest   `json:"pricing"`
	Policy  policyRequest    `json:"policy"`
}

type pricingRequest struct {
	PaymentToken  string `json:"paymentToken"`
	BasePrice     string `json:"basePrice"`
	UnitType      string `json:"unitType"`
	UnitPrice     string `json:"unitPrice"`
	MinUnits      uint64 `json:"minUnits"`
	MaxUnits      uint64 `json:"maxUnits"`
	QuoteRequired bool   `json:"quoteRequired"`
}

type policyRequest struct {
	ChallengeWindowSec   int64  `json:"challengeWindowSec"`
	PostDisputeWindowSec int64  `json:"postDisputeWindowSec"`
	DeliveryWindowSec    int64  `json:"deliveryWindowSec"`
	SellerBondBps        uint32 `json:"sellerBondBps"`
}

func (p pricingRequest) toPricing() (listing.Pricing, error) {
	basePrice, err := parseAmount(p.BasePrice)
	if err != nil {
		return listing.Pricing{}, fmt.Errorf("basePrice: %w", err)
	}
	unitPrice, err := parseAmount(p.UnitPrice)
	if err != nil {
		return listing.Pricing{}, fmt.Errorf("unitPrice: %w", err)
	}
	var unitType [32]byte
	if p.UnitType != "" {
		decoded, err := hex.DecodeString(p.UnitType)
		if err != nil || len(decoded) > 32 {
			return listing.Pricing{}, fmt.Errorf("unitType: invalid 32-byte hex label")
		}
		copy(unitType[32-len(decoded):], decoded)
	}
	return listing.Pricing{
		PaymentToken:  p.PaymentToken,
		BasePrice:     basePrice,
		UnitType:      unitType,
		UnitPrice:     unitPrice,
		MinUnits:      p.MinUnits,
		MaxUnits:      p.MaxUnits,
		QuoteRequired: p.QuoteRequired,
	}, nil
}

func (p policyRequest) toPolicy() listing.Policy {
	return listing.Policy{
		ChallengeWindowSec:   p.ChallengeWindowSec,
		PostDisputeWindowSec: p.PostDisputeWindowSec,
		DeliveryWindowSec:    p.DeliveryWindowSec,
		SellerBondBps:        p.SellerBondBps,
	}
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	caller, err := decodeAddr(middleware.CallerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	var req createListingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	pricing, err := req.Pricing.toPricing()
	if err != nil {
		writeError(w, err)
		return
	}
	created, err := s.module.Listing.CreateListing(caller, req.AgentID, req.URI, pricing, req.Policy.toPolicy())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewListing(created))
}

type updateListingRequest struct {
	URI    string `json:"uri"`
	Active bool   `json:"active"`
}

func (s *Server) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	caller, err := decodeAddr(middleware.CallerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	listingID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateListingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.module.Listing.UpdateListing(caller, listingID, req.URI, req.Active); err != nil {
		writeError(w, err)
		return
	}
	updated, err := s.module.Listing.GetListing(listingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewListing(updated))
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	listingID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	found, err := s.module.Listing.GetListing(listingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewListing(found))
}
