package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/openquill-team/riskgate/internal/identity"
	"github.com/openquill-team/riskgate/internal/ledger"
)

// adminKeyHeader carries the static admin key.
// TODO: replace static key auth with per-operator credentials once the
// dashboard gets real users.
const adminKeyHeader = "X-Admin-Key"

// defaultPurgeDays is the retention cutoff applied when a purge request
// doesn't name one.
const defaultPurgeDays = 90

// AdminKeyMiddleware rejects requests whose X-Admin-Key header does not
// match the configured key. The comparison is constant-time so the key
// cannot be probed byte by byte.
func AdminKeyMiddleware(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key == "" {
				return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
					Error: "Admin API is not configured",
				})
			}

			presented := c.Request().Header.Get(adminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error: "Invalid admin key",
				})
			}

			return next(c)
		}
	}
}

// GetAbuseRecord retrieves the abuse record for an address
// GET /api/v1/admin/abuse/:address
func (h *Handlers) GetAbuseRecord(c echo.Context) error {
	address := identity.Resolve(c.Param("address"), "", "").Address

	rec, err := h.store.Get(c.Request().Context(), address)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "No abuse record for this address",
			})
		}
		return InternalServerError(c, "Failed to retrieve abuse record", err)
	}

	return c.JSON(http.StatusOK, rec)
}

// PatchAbuseRecord applies an admin flag override. This is the only path
// that can set or clear the ban flag.
// PATCH /api/v1/admin/abuse/:address
func (h *Handlers) PatchAbuseRecord(c echo.Context) error {
	address := identity.Resolve(c.Param("address"), "", "").Address

	var req PatchAbuseRecordRequest
	if err := c.Bind(&req); err != nil {
		return ValidationError(c, "Invalid request body", err.Error())
	}
	if req.RiskScore != nil && (*req.RiskScore < 0 || *req.RiskScore > 100) {
		return ValidationError(c, "Invalid risk score", "riskScore must be in [0,100]")
	}

	ctx := c.Request().Context()
	err := h.store.Update(ctx, address, ledger.Patch{
		Banned:      req.Banned,
		VPN:         req.VPN,
		Proxy:       req.Proxy,
		Datacenter:  req.Datacenter,
		CountryCode: req.CountryCode,
		RiskScore:   req.RiskScore,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "No abuse record for this address",
			})
		}
		return InternalServerError(c, "Failed to update abuse record", err)
	}

	rec, err := h.store.Get(ctx, address)
	if err != nil {
		return InternalServerError(c, "Failed to retrieve abuse record", err)
	}
	return c.JSON(http.StatusOK, rec)
}

// RecheckAbuseRecord re-runs the network collectors against a stored record
// and persists the refreshed flags
// POST /api/v1/admin/abuse/:address/recheck
func (h *Handlers) RecheckAbuseRecord(c echo.Context) error {
	id := identity.Resolve(c.Param("address"), "", "")

	assessment, err := h.scorer.ForceRecheck(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "No abuse record for this address",
			})
		}
		return InternalServerError(c, "Failed to recheck address", err)
	}

	return c.JSON(http.StatusOK, assessment)
}

// PurgeAbuseRecords deletes stale, unbanned records. Retention is explicit:
// nothing is ever evicted outside this endpoint.
// POST /api/v1/admin/abuse/purge
func (h *Handlers) PurgeAbuseRecords(c echo.Context) error {
	var req PurgeRequest
	if err := c.Bind(&req); err != nil {
		return ValidationError(c, "Invalid request body", err.Error())
	}
	if req.OlderThanDays < 0 {
		return ValidationError(c, "Invalid retention window", "olderThanDays must be non-negative")
	}
	if req.OlderThanDays == 0 {
		req.OlderThanDays = defaultPurgeDays
	}

	cutoff := time.Now().AddDate(0, 0, -req.OlderThanDays)
	purged, err := h.store.PurgeStale(c.Request().Context(), cutoff)
	if err != nil {
		return InternalServerError(c, "Failed to purge stale records", err)
	}

	return c.JSON(http.StatusOK, PurgeResponse{Purged: purged})
}

var eventStreamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Admin key auth already happened in the middleware chain.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamEvents upgrades to a WebSocket and streams live decision events to
// the admin dashboard until the client disconnects
// GET /api/v1/admin/events
func (h *Handlers) StreamEvents(c echo.Context) error {
	if h.hub == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "Event streaming is not available",
		})
	}

	conn, err := eventStreamUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	events, cancel := h.hub.Subscribe()
	defer cancel()

	// Drain reads so close frames and pings are processed; unsubscribe as
	// soon as the peer goes away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := conn.WriteJSON(ev); err != nil {
				return nil
			}
		case <-done:
			return nil
		case <-c.Request().Context().Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return nil
		}
	}
}
