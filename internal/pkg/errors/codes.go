package errors

import "net/http"

var (
	ErrJobNotFound = New(
		"JOB_NOT_FOUND",
		"Inspection job not found",
		http.StatusNotFound,
	)

	ErrInvalidRequest = New(
		"INVALID_REQUEST",
		"Invalid request parameters",
		http.StatusBadRequest,
	)

	ErrInvalidDateRange = New(
		"INVALID_DATE_RANGE",
		"Invalid analysis date range",
		http.StatusBadRequest,
	)

	ErrInvalidLimit = New(
		"INVALID_LIMIT",
		"Invalid history limit: must be between 1 and 500",
		http.StatusBadRequest,
	)

	ErrRasterBackend = New(
		"RASTER_BACKEND_ERROR",
		"Raster backend is unavailable",
		http.StatusBadGateway,
	)

	ErrAnalysisFailed = New(
		"ANALYSIS_FAILED",
		"Analysis pipeline failed",
		http.StatusInternalServerError,
	)

	ErrQueueError = New(
		"QUEUE_ERROR",
		"Failed to enqueue analysis job",
		http.StatusInternalServerError,
	)

	ErrDatabaseError = New(
		"DATABASE_ERROR",
		"Database operation failed",
		http.StatusInternalServerError,
	)

	ErrCacheError = New(
		"CACHE_ERROR",
		"Cache operation failed",
		http.StatusInternalServerError,
	)

	ErrInternalServer = New(
		"INTERNAL_SERVER_ERROR",
		"Internal server error",
		http.StatusInternalServerError,
	)
)
