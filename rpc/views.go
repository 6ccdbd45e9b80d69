package rpc

import (
	"encoding/hex"
	"math/big"

	"taskmarket/native/dispute"
	"taskmarket/native/identity"
	"taskmarket/native/listing"
	"taskmarket/native/market"
)

type agentView struct {
	ID       uint64 `json:"id"`
	Owner    string `json:"owner"`
	Approved string `json:"approved,omitempty"`
	URI      string `json:"uri"`
}

func viewAgent(a *identity.Agent) agentView {
	v := agentView{ID: a.ID, Owner: encodeAddr(a.Owner), URI: a.URI}
	if a.Approved != ([20]byte{}) {
		v.Approved = encodeAddr(a.Approved)
	}
	return v
}

type pricingView struct {
	PaymentToken  string `json:"paymentToken"`
	BasePrice     string `json:"basePrice"`
	UnitType      string `json:"unitType"`
	UnitPrice     string `json:"unitPrice"`
	MinUnits      uint64 `json:"minUnits"`
	MaxUnits      uint64 `json:"maxUnits"`
	QuoteRequired bool   `json:"quoteRequired"`
}

type policyView struct {
	ChallengeWindowSec   int64  `json:"challengeWindowSec"`
	PostDisputeWindowSec int64  `json:"postDisputeWindowSec"`
	DeliveryWindowSec    int64  `json:"deliveryWindowSec"`
	SellerBondBps        uint32 `json:"sellerBondBps"`
}

type listingView struct {
	ID      uint64      `json:"id"`
	AgentID uint64      `json:"agentId"`
	URI     string      `json:"uri"`
	Pricing pricingView `json:"pricing"`
	Policy  policyView  `json:"policy"`
	Active  bool        `json:"active"`
}

func viewListing(l *listing.Listing) listingView {
	return listingView{
		ID:      l.ID,
		AgentID: l.AgentID,
		URI:     l.URI,
		Pricing: pricingView{
			PaymentToken:  l.Pricing.PaymentToken,
			BasePrice:     l.Pricing.BasePrice.String(),
			UnitType:      hex.EncodeToString(l.Pricing.UnitType[:]),
			UnitPrice:     l.Pricing.UnitPrice.String(),
			MinUnits:      l.Pricing.MinUnits,
			MaxUnits:      l.Pricing.MaxUnits,
			QuoteRequired: l.Pricing.QuoteRequired,
		},
		Policy: policyView{
			ChallengeWindowSec:   l.Policy.ChallengeWindowSec,
			PostDisputeWindowSec: l.Policy.PostDisputeWindowSec,
			DeliveryWindowSec:    l.Policy.DeliveryWindowSec,
			SellerBondBps:        l.Policy.SellerBondBps,
		},
		Active: l.Active,
	}
}

type taskView struct {
	ID               uint64 `json:"id"`
	ListingID        uint64 `json:"listingId"`
	AgentID          uint64 `json:"agentId"`
	Buyer            string `json:"buyer"`
	PaymentToken     string `json:"paymentToken"`
	TaskURI          string `json:"taskUri"`
	ProposedUnits    uint64 `json:"proposedUnits"`
	QuotedUnits      uint64 `json:"quotedUnits"`
	QuotedTotalPrice string `json:"quotedTotalPrice"`
	QuoteExpiry      int64  `json:"quoteExpiry"`
	FundedAmount     string `json:"fundedAmount"`
	SellerBond       string `json:"sellerBond"`
	BondFunder       string `json:"bondFunder,omitempty"`
	Seller           string `json:"seller,omitempty"`
	ArtifactURI      string `json:"artifactUri,omitempty"`
	ArtifactHash     string `json:"artifactHash,omitempty"`
	ActivatedAt      int64  `json:"activatedAt,omitempty"`
	SubmittedAt      int64  `json:"submittedAt,omitempty"`
	DisputedAt       int64  `json:"disputedAt,omitempty"`
	Status           string `json:"status"`
	SettlementPath   string `json:"settlementPath,omitempty"`
	Settled          bool   `json:"settled"`
}

func viewTask(t *market.Task) taskView {
	v := taskView{
		ID:               t.ID,
		ListingID:        t.ListingID,
		AgentID:          t.AgentID,
		Buyer:            encodeAddr(t.Buyer),
		PaymentToken:     t.PaymentToken,
		TaskURI:          t.TaskURI,
		ProposedUnits:    t.ProposedUnits,
		QuotedUnits:      t.QuotedUnits,
		QuotedTotalPrice: bigOrZero(t.QuotedTotalPrice),
		QuoteExpiry:      t.QuoteExpiry,
		FundedAmount:     bigOrZero(t.FundedAmount),
		SellerBond:       bigOrZero(t.SellerBond),
		ArtifactURI:      t.ArtifactURI,
		ActivatedAt:      t.ActivatedAt,
		SubmittedAt:      t.SubmittedAt,
		DisputedAt:       t.DisputedAt,
		Status:           t.Status.String(),
		SettlementPath:   string(t.SettlementPath),
		Settled:          t.Settled,
	}
	if t.BondFunder != ([20]byte{}) {
		v.BondFunder = encodeAddr(t.BondFunder)
	}
	if t.Seller != ([20]byte{}) {
		v.Seller = encodeAddr(t.Seller)
	}
	if t.ArtifactHash != ([32]byte{}) {
		v.ArtifactHash = hex.EncodeToString(t.ArtifactHash[:])
	}
	return v
}

type disputeRecordView struct {
	TaskID        uint64 `json:"taskId"`
	Buyer         string `json:"buyer"`
	Opened        bool   `json:"opened"`
	Resolved      bool   `json:"resolved"`
	DisputeURI    string `json:"disputeUri,omitempty"`
	ResolutionURI string `json:"resolutionUri,omitempty"`
	Outcome       string `json:"outcome"`
}

func viewDisputeRecord(r *dispute.DisputeRecord) disputeRecordView {
	return disputeRecordView{
		TaskID:        r.TaskID,
		Buyer:         encodeAddr(r.Buyer),
		Opened:        r.Opened,
		Resolved:      r.Resolved,
		DisputeURI:    r.DisputeURI,
		ResolutionURI: r.ResolutionURI,
		Outcome:       r.Outcome.String(),
	}
}

func bigOrZero(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
