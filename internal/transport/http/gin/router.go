package httpgin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/kirinyoku/rehearsal-go/internal/reservation"
	"github.com/kirinyoku/rehearsal-go/internal/series"
	"github.com/kirinyoku/rehearsal-go/internal/service"
	"github.com/kirinyoku/rehearsal-go/internal/service/admin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// IdempotencyStore replays the stored response of a request retried with
// the same Idempotency-Key.
type IdempotencyStore interface {
	GetResult(ctx context.Context, key string) (string, bool, error)
	AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	SaveResult(ctx context.Context, key string, jsonPayload string) error
	Release(ctx context.Context, key string) error
}

type RateLimiter interface {
	Allow(ctx context.Context, id string) (allowed bool, current int64, retryAfter time.Duration, err error)
}

// Options are the optional collaborators of the router. A nil field turns
// the matching feature off.
type Options struct {
	Idempotency IdempotencyStore
	Limiter     RateLimiter
	Middlewares []gin.HandlerFunc
}

func NewRouter(svcs *service.Services, opts Options, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), CORS())
	for _, m := range opts.Middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	avail := r.Group("/availability")
	{
		avail.GET("/check", handleCheck(svcs))
		avail.GET("/slots", handleListSlots(svcs))
		avail.GET("/end-times", handleListEndTimes(svcs))
		avail.GET("/gaps", handleFindGaps(svcs))
	}

	bookings := r.Group("/bookings")
	{
		bookings.POST("", RateLimitMiddleware(opts.Limiter, logger), handleCreateBooking(svcs, opts.Idempotency))
		bookings.GET("", handleListBookings(svcs))
		bookings.GET("/:id", handleGetBooking(svcs))
		bookings.PATCH("/:id", handleUpdateBooking(svcs))
		bookings.POST("/:id/confirm", handleConfirmBooking(svcs))
		bookings.POST("/:id/cancel", handleCancelBooking(svcs))
		bookings.POST("/:id/settlement", handleMarkSettlement(svcs))
	}

	sr := r.Group("/series")
	{
		sr.POST("", handleCreateSeries(svcs))
		sr.POST("/forecast", handleForecast(svcs))
		sr.GET("/:id", handleGetSeries(svcs))
		sr.POST("/:id/pause", handlePauseSeries(svcs))
		sr.POST("/:id/resume", handleResumeSeries(svcs))
		sr.POST("/:id/cancel", handleCancelSeries(svcs))
	}

	// Admin-API
	// TODO: put staff authentication in front of /admin once accounts exist.
	adm := r.Group("/admin")
	{
		adm.POST("/closures", handleCreateClosure(svcs))
		adm.GET("/closures", handleListClosures(svcs))
		adm.DELETE("/closures/:id", handleDeleteClosure(svcs))
		adm.POST("/event-holds", handleCreateEventHold(svcs))
		adm.POST("/event-holds/:id/release", handleReleaseEventHold(svcs))
		adm.POST("/sweep", handleRunSweep(svcs))
	}

	return r
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func parseTimeQuery(c *gin.Context, name string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, c.Query(name))
	if err != nil {
		badRequest(c, "invalid "+name+" (RFC3339)")
		return time.Time{}, false
	}
	return t, true
}

func parseIntQuery(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// respondErr maps the service error taxonomy onto HTTP statuses.
func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var (
		verrs    domain.ValidationErrors
		verr     *domain.ValidationError
		conflict *domain.ConflictError
		state    *domain.StateError
	)

	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "validation failed", Details: verrs})
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "validation failed", Details: domain.ValidationErrors{verr}})
	case errors.As(err, &conflict):
		report := conflict.Report
		c.JSON(http.StatusConflict, ErrorResponse{Error: "time window is taken", Conflicts: &report})
	case errors.As(err, &state):
		c.JSON(http.StatusConflict, ErrorResponse{Error: state.Error()})
	case errors.Is(err, reservation.ErrDuplicateInstance):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "series instance already booked"})
	case errors.Is(err, reservation.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
	case errors.Is(err, series.ErrSeriesNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "series not found"})
	case errors.Is(err, admin.ErrClosureNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "closure not found"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
