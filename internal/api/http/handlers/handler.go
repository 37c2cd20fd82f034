package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/service"
	"subgraphx/pkg/httputil"
)

type Handler struct {
	Log logger.Logger
	Svc *service.IndexerService
}

func NewHandler(log logger.Logger, svc *service.IndexerService) *Handler {
	if svc == nil {
		panic("indexer service cannot be nil")
	}

	return &Handler{Log: log, Svc: svc}
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	if err := httputil.JSON(w, http.StatusOK, map[string]any{}, nil); err != nil {
		h.Log.Errorf("Healthz handler error: %s", err.Error())
	}
}

// Readiness checks the health of every external dependency.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := h.Svc.CheckDependency(ctx); err != nil {
		err = httputil.Error(w, r, http.StatusServiceUnavailable, "dependencies_unhealthy", "dependencies check failed", map[string]any{
			"error": err.Error(),
		})
		if err != nil {
			h.Log.Errorf("Readiness handler error: %s", err.Error())
		}
		return
	}

	if err := httputil.JSON(w, http.StatusOK, map[string]string{"dependencies": "healthy"}, nil); err != nil {
		h.Log.Errorf("Readiness handler error: %s", err.Error())
	}
}

func (h *Handler) Protocol(w http.ResponseWriter, r *http.Request) {
	p, err := h.Svc.ProtocolStats(r.Context())
	if err != nil {
		h.writeLookupError(w, r, err, "Protocol")
		return
	}

	if err = httputil.JSON(w, http.StatusOK, p, nil); err != nil {
		h.Log.Errorf("Protocol handler error: %s", err.Error())
	}
}

func (h *Handler) Pools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.Svc.ListPools(r.Context())
	if err != nil {
		h.writeLookupError(w, r, err, "Pools")
		return
	}

	if err = httputil.JSON(w, http.StatusOK, map[string]any{"pools": pools, "count": len(pools)}, nil); err != nil {
		h.Log.Errorf("Pools handler error: %s", err.Error())
	}
}

func (h *Handler) PoolByAddress(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")

	p, err := h.Svc.PoolByAddress(r.Context(), addr)
	if err != nil {
		h.writeLookupError(w, r, err, "PoolByAddress")
		return
	}

	if err = httputil.JSON(w, http.StatusOK, p, nil); err != nil {
		h.Log.Errorf("PoolByAddress handler error: %s", err.Error())
	}
}

func (h *Handler) AccountByAddress(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")

	a, err := h.Svc.AccountByAddress(r.Context(), addr)
	if err != nil {
		h.writeLookupError(w, r, err, "AccountByAddress")
		return
	}

	if err = httputil.JSON(w, http.StatusOK, a, nil); err != nil {
		h.Log.Errorf("AccountByAddress handler error: %s", err.Error())
	}
}

func (h *Handler) TokenPrice(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")

	tok, err := h.Svc.TokenByAddress(r.Context(), addr)
	if err != nil {
		h.writeLookupError(w, r, err, "TokenPrice")
		return
	}

	resp := map[string]any{
		"token":       tok.ID,
		"symbol":      tok.Symbol,
		"price_usd":   tok.PriceUSD,
		"price_block": tok.PriceBlock,
	}
	if err = httputil.JSON(w, http.StatusOK, resp, nil); err != nil {
		h.Log.Errorf("TokenPrice handler error: %s", err.Error())
	}
}

func (h *Handler) writeLookupError(w http.ResponseWriter, r *http.Request, err error, op string) {
	status, code := http.StatusInternalServerError, "internal_error"
	if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrProtocolNotSeeded) {
		status, code = http.StatusNotFound, "not_found"
	}

	if werr := httputil.Error(w, r, status, code, err.Error(), nil); werr != nil {
		h.Log.Errorf("%s handler error: %s", op, werr.Error())
	}
}
