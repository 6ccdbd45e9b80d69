package middleware

import (
	"net/http"
	"time"

	"taskmarket/crypto"
	nativecommon "taskmarket/native/common"
)

// QuotaGuard enforces the coarser per-epoch request/NHB-spend cap that the
// native quota package computes, on top of the per-second token bucket in
// RateLimiter. It exists to bound sustained abuse across a longer window
// than a token bucket alone captures.
type QuotaGuard struct {
	store  nativecommon.Store
	module string
	quota  nativecommon.Quota
	nowFn  func() time.Time
}

// NewQuotaGuard constructs a guard backed by store, scoped to module.
func NewQuotaGuard(store nativecommon.Store, module string, quota nativecommon.Quota) *QuotaGuard {
	return &QuotaGuard{store: store, module: module, quota: quota, nowFn: time.Now}
}

// Middleware rejects a request once the caller's epoch quota is exhausted.
// Every request costs one unit; NHB spend accounting is left at zero here
// since the HTTP layer does not know a request's settlement amount ahead of
// invoking the engine, and no handler charges NHB spend afterwards, so the
// per-epoch NHB cap is never consumed by the gateway.
func (g *QuotaGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g == nil || g.store == nil {
			next.ServeHTTP(w, r)
			return
		}
		caller := CallerFromContext(r.Context())
		if caller == "" {
			next.ServeHTTP(w, r)
			return
		}
		addr, err := crypto.DecodeAddress(caller)
		if err != nil {
			http.Error(w, "invalid caller address", http.StatusBadRequest)
			return
		}
		epoch := epochFor(g.quota.EpochSeconds, g.nowFn())
		if _, err := nativecommon.Apply(g.store, g.module, epoch, addr.Bytes(), g.quota, 1, 0); err != nil {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func epochFor(epochSeconds uint32, now time.Time) uint64 {
	if epochSeconds == 0 {
		epochSeconds = 3600
	}
	return uint64(now.Unix()) / uint64(epochSeconds)
}
