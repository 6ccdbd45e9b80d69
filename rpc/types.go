// Package rpc exposes the four native modules over a chi-routed HTTP API,
// grounded on the pairing of the teacher's gateway/routes router composition
// and its rpc/escrow_handlers.go handler style — this service owns its own
// domain rather than reverse-proxying, so requests are dispatched straight
// to the wired app.Module engines instead of to another microservice.
package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"taskmarket/crypto"
)

func decodeAddr(s string) ([20]byte, error) {
	var zero [20]byte
	addr, err := crypto.DecodeAddress(s)
	if err != nil {
		return zero, fmt.Errorf("invalid address %q: %w", s, err)
	}
	var out [20]byte
	copy(out[:], addr.Bytes())
	return out, nil
}

func encodeAddr(b [20]byte) string {
	return crypto.MustNewAddress(crypto.NHBPrefix, b[:]).String()
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", s)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	return amount, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
