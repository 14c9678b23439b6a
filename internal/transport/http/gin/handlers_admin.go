package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/rehearsal-go/internal/reservation"
	"github.com/kirinyoku/rehearsal-go/internal/service"
	"github.com/kirinyoku/rehearsal-go/internal/service/admin"
)

// @Summary  Close the room for a period
// @Tags     admin
// @Param    req  body  CreateClosureRequest  true  "payload"
// @Success  201  {object}  admin.ClosureResult
// @Failure  422  {object}  ErrorResponse
// @Router   /admin/closures [post]
func handleCreateClosure(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateClosureRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svcs.Admin.CreateClosure(c.Request.Context(), admin.ClosureRequest{
			Start:  req.Start,
			End:    req.End,
			Reason: req.Reason,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, res)
	}
}

// @Summary  List closures overlapping a range
// @Tags     admin
// @Param    from  query  string  true  "RFC3339"
// @Param    to    query  string  true  "RFC3339"
// @Success  200  {array}  domain.Closure
// @Router   /admin/closures [get]
func handleListClosures(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, ok := parseTimeQuery(c, "from")
		if !ok {
			return
		}
		to, ok := parseTimeQuery(c, "to")
		if !ok {
			return
		}
		out, err := svcs.Admin.ListClosures(c.Request.Context(), from, to)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Remove a closure
// @Tags     admin
// @Param    id  path  string  true  "Closure ID (uuid)"
// @Success  204  "no content"
// @Failure  404  {object}  ErrorResponse
// @Router   /admin/closures/{id} [delete]
func handleDeleteClosure(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		if err := svcs.Admin.DeleteClosure(c.Request.Context(), id); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Hold the room for a venue event
// @Tags     admin
// @Param    req  body  CreateEventHoldRequest  true  "payload"
// @Success  201  {object}  domain.Booking
// @Failure  409  {object}  ErrorResponse
// @Router   /admin/event-holds [post]
func handleCreateEventHold(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEventHoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		b, err := svcs.Reservation.CreateEventHold(c.Request.Context(), reservation.HoldRequest{
			EventRef: req.EventRef,
			Start:    req.Start,
			End:      req.End,
			Note:     req.Note,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, b)
	}
}

// @Summary  Release an event hold
// @Tags     admin
// @Param    id   path  string                true   "Hold ID (uuid)"
// @Param    req  body  CancelBookingRequest  false  "payload"
// @Success  200  {object}  domain.Booking
// @Failure  404  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse "not an event hold"
// @Router   /admin/event-holds/{id}/release [post]
func handleReleaseEventHold(svcs *service.Services) gin.HandlerFunc {
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
		b, err := svcs.Reservation.ReleaseEventHold(c.Request.Context(), id, req.Reason)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Run the auto-cancellation sweep now
// @Tags     admin
// @Success  200  {object}  worker.SweepStats
// @Router   /admin/sweep [post]
func handleRunSweep(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := svcs.Sweep.RunOnce(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}
