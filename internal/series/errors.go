package series

import "errors"

var (
	ErrSeriesNotFound  = errors.New("series not found")
	ErrSeriesNotActive = errors.New("series is not active")
	ErrSeriesClosed    = errors.New("series is already closed")
)
