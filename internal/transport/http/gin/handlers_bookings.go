package httpgin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redisx "github.com/kirinyoku/rehearsal-go/internal/redis"
	"github.com/kirinyoku/rehearsal-go/internal/reservation"
	"github.com/kirinyoku/rehearsal-go/internal/service"
)

const idempotencyLockTTL = 60 * time.Second

// @Summary  Create booking (idempotent)
// @Param    req  body  CreateBookingRequest  true  "payload"
// @Param    Idempotency-Key  header  string  false  "replay key"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201  {object}  domain.Booking
// @Failure  400  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse "window taken / idem in progress"
// @Failure  422  {object}  ErrorResponse
// @Failure  429  {object}  ErrorResponse "rate limited"
// @Router   /bookings [post]
func handleCreateBooking(svcs *service.Services, idem IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ctx := c.Request.Context()
		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))

		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisx.KeyIdemBooking(req.OwnerID, idemKey)

			if replayed := replay(c, idem, idemStorageKey, idemKey); replayed {
				return
			}

			locked, err := idem.AcquireLock(ctx, idemStorageKey, idempotencyLockTTL)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if replayed := replay(c, idem, idemStorageKey, idemKey); replayed {
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		b, err := svcs.Reservation.Create(ctx, reservation.Request{
			OwnerID: req.OwnerID,
			Start:   req.Start,
			End:     req.End,
			Note:    req.Note,
			Status:  req.Status,
		})
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(ctx, idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" {
			payload, _ := json.Marshal(b)
			_ = idem.SaveResult(ctx, idemStorageKey, string(payload))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, b)
	}
}

func replay(c *gin.Context, idem IdempotencyStore, storageKey, key string) bool {
	payload, ok, _ := idem.GetResult(c.Request.Context(), storageKey)
	if !ok {
		return false
	}
	c.Header("Idempotency-Key", key)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
	return true
}

// @Summary  Get booking
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200  {object}  domain.Booking
// @Failure  404  {object}  ErrorResponse
// @Router   /bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Reservation.Get(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  List bookings by owner or by time range
// @Param    owner_id  query  int     false  "owner"
// @Param    from      query  string  false  "RFC3339, with to"
// @Param    to        query  string  false  "RFC3339, with from"
// @Param    limit     query  int     false  "page size"
// @Param    offset    query  int     false  "offset"
// @Success  200  {array}   domain.Booking
// @Failure  400  {object}  ErrorResponse
// @Router   /bookings [get]
func handleListBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if s := c.Query("owner_id"); s != "" {
			ownerID, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				badRequest(c, "invalid owner_id")
				return
			}
			out, err := svcs.Reservation.ListByOwner(ctx, ownerID,
				parseIntDefault(c.Query("limit"), 50),
				parseIntDefault(c.Query("offset"), 0),
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
			return
		}

		if c.Query("from") == "" {
			badRequest(c, "owner_id or from/to is required")
			return
		}
		from, ok := parseTimeQuery(c, "from")
		if !ok {
			return
		}
		to, ok := parseTimeQuery(c, "to")
		if !ok {
			return
		}
		out, err := svcs.Reservation.ListBetween(ctx, from, to)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Reschedule or edit a booking
// @Param    id   path  string                true  "Booking ID (uuid)"
// @Param    req  body  UpdateBookingRequest  true  "payload"
// @Success  200  {object}  domain.Booking
// @Failure  409  {object}  ErrorResponse
// @Failure  422  {object}  ErrorResponse
// @Router   /bookings/{id} [patch]
func handleUpdateBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req UpdateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		b, err := svcs.Reservation.Update(c.Request.Context(), id, reservation.UpdateRequest{
			Start: req.Start,
			End:   req.End,
			Note:  req.Note,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Confirm booking
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200  {object}  domain.Booking
// @Failure  409  {object}  ErrorResponse "outside the confirmation window"
// @Router   /bookings/{id}/confirm [post]
func handleConfirmBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Reservation.Confirm(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Cancel booking
// @Param    id   path  string                true   "Booking ID (uuid)"
// @Param    req  body  CancelBookingRequest  false  "payload"
// @Success  200  {object}  domain.Booking
// @Failure  409  {object}  ErrorResponse
// @Router   /bookings/{id}/cancel [post]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req CancelBookingRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}
		b, err := svcs.Reservation.Cancel(c.Request.Context(), id, req.Reason)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Record settlement
// @Param    id   path  string             true  "Booking ID (uuid)"
// @Param    req  body  SettlementRequest  true  "payload"
// @Success  200  {object}  domain.Booking
// @Failure  422  {object}  ErrorResponse
// @Router   /bookings/{id}/settlement [post]
func handleMarkSettlement(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req SettlementRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		b, err := svcs.Reservation.MarkSettlement(c.Request.Context(), id, req.Settlement)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}
