package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/series"
	"github.com/kirinyoku/rehearsal-go/internal/service"
)

type CreateSeriesResponse struct {
	Series  *domain.RecurringSeries  `json:"series"`
	Created []domain.Booking         `json:"created"`
	Skipped []series.SkippedInstance `json:"skipped"`
}

// @Summary  Create recurring series
// @Param    req  body  CreateSeriesRequest  true  "payload"
// @Success  201  {object}  CreateSeriesResponse
// @Failure  422  {object}  ErrorResponse
// @Router   /series [post]
func handleCreateSeries(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateSeriesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		s, res, err := svcs.Series.CreateSeries(c.Request.Context(), series.SeriesRequest{
			OwnerID:       req.OwnerID,
			FirstStart:    req.FirstStart,
			FirstEnd:      req.FirstEnd,
			Weeks:         req.Weeks,
			IntervalWeeks: req.IntervalWeeks,
			Note:          req.Note,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateSeriesResponse{Series: s, Created: res.Created, Skipped: res.Skipped})
	}
}

// @Summary  Forecast credit sufficiency
// @Param    req  body  ForecastRequest  true  "payload"
// @Success  200  {object}  domain.Forecast
// @Failure  422  {object}  ErrorResponse
// @Router   /series/forecast [post]
func handleForecast(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ForecastRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		f, err := svcs.Series.EstimateCreditSufficiency(c.Request.Context(), req.OwnerID, req.Start, req.End,
			series.Pattern{Weeks: req.Weeks, IntervalWeeks: req.IntervalWeeks})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, f)
	}
}

// @Summary  Get series
// @Param    id  path  string  true  "Series ID (uuid)"
// @Success  200  {object}  domain.RecurringSeries
// @Failure  404  {object}  ErrorResponse
// @Router   /series/{id} [get]
func handleGetSeries(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		s, err := svcs.Series.Get(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// @Summary  Pause series
// @Param    id  path  string  true  "Series ID (uuid)"
// @Success  200  {object}  domain.RecurringSeries
// @Router   /series/{id}/pause [post]
func handlePauseSeries(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		s, err := svcs.Series.Pause(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// @Summary  Resume series
// @Param    id  path  string  true  "Series ID (uuid)"
// @Success  200  {object}  domain.RecurringSeries
// @Router   /series/{id}/resume [post]
func handleResumeSeries(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		s, err := svcs.Series.Resume(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// @Summary  Cancel series and its future instances
// @Param    id   path  string                true   "Series ID (uuid)"
// @Param    req  body  CancelBookingRequest  false  "payload"
// @Success  200  {object}  series.CancelResult
// @Router   /series/{id}/cancel [post]
func handleCancelSeries(svcs *service.Services) gin.HandlerFunc {
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
		res, err := svcs.Series.CancelSeries(c.Request.Context(), id, req.Reason)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
