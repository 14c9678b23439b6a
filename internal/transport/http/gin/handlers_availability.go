package httpgin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/service"
)

// Availability answers change with every booking, so clients revalidate
// each time and get a 304 when nothing moved.
const availabilityCacheControl = "no-cache"

// @Summary  Check a window
// @Param    start       query  string  true   "RFC3339"
// @Param    end         query  string  true   "RFC3339"
// @Param    exclude_id  query  string  false  "booking being rescheduled"
// @Success  200  {object}  CheckResponse
// @Failure  400  {object}  ErrorResponse
// @Router   /availability/check [get]
func handleCheck(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		start, ok := parseTimeQuery(c, "start")
		if !ok {
			return
		}
		end, ok := parseTimeQuery(c, "end")
		if !ok {
			return
		}

		var exclude *uuid.UUID
		if s := c.Query("exclude_id"); s != "" {
			id, err := uuid.Parse(s)
			if err != nil {
				badRequest(c, "invalid exclude_id")
				return
			}
			exclude = &id
		}

		report, err := svcs.Availability.Check(c.Request.Context(), start, end, exclude)
		var verrs domain.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			c.JSON(http.StatusOK, CheckResponse{Available: false, Violations: verrs})
			return
		case err != nil:
			respondErr(c, err)
			return
		}

		resp := CheckResponse{Available: report.Empty()}
		if !resp.Available {
			resp.Conflicts = &report
		}
		writeJSONWithCache(c, http.StatusOK, resp, availabilityCacheControl, true)
	}
}

// @Summary  List open slots
// @Param    date              query  string  true  "YYYY-MM-DD"
// @Param    duration_minutes  query  int     true  "slot length"
// @Success  200  {object}  SlotsResponse
// @Failure  422  {object}  ErrorResponse
// @Router   /availability/slots [get]
func handleListSlots(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		date := c.Query("date")
		minutes, ok := parseIntQuery(c, "duration_minutes")
		if !ok {
			return
		}

		slots, err := svcs.Availability.ListOpenSlots(c.Request.Context(), date, minutes)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, SlotsResponse{Date: date, Slots: slots}, availabilityCacheControl, true)
	}
}

// @Summary  List valid end times for a start
// @Param    date   query  string  true  "YYYY-MM-DD"
// @Param    start  query  string  true  "RFC3339"
// @Success  200  {object}  EndTimesResponse
// @Failure  422  {object}  ErrorResponse
// @Router   /availability/end-times [get]
func handleListEndTimes(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		date := c.Query("date")
		start, ok := parseTimeQuery(c, "start")
		if !ok {
			return
		}

		ends, err := svcs.Availability.ListValidEndTimes(c.Request.Context(), date, start)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, EndTimesResponse{Date: date, Start: start, EndTimes: ends}, availabilityCacheControl, true)
	}
}

// @Summary  Find free gaps
// @Param    date             query  string  true   "YYYY-MM-DD"
// @Param    min_gap_minutes  query  int     false  "shortest gap kept"
// @Success  200  {object}  GapsResponse
// @Failure  422  {object}  ErrorResponse
// @Router   /availability/gaps [get]
func handleFindGaps(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		date := c.Query("date")
		minGap := parseIntDefault(c.Query("min_gap_minutes"), 0)

		gaps, err := svcs.Availability.FindGaps(c.Request.Context(), date, minGap)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, GapsResponse{Date: date, Gaps: gaps}, availabilityCacheControl, true)
	}
}
