package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/services"
	"github.com/upb/lingotube/backend/utils"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	var writeErr error

	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, err.Error())

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, err.Error(), details)

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, err.Error())

	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, err.Error())

	case services.IsRateLimitError(err):
		writeErr = utils.WriteTooManyRequests(w, err.Error(), details)

	case services.IsQuotaError(err):
		// Quota exhaustion is retryable later, so it shares 429 with rate limits
		logger.Warn("provider quota exhausted", zap.Error(err))
		writeErr = utils.WriteQuotaExhausted(w, err.Error(), details)

	case services.IsConflictError(err):
		writeErr = utils.WriteConflict(w, err.Error(), details)

	case services.IsExternalError(err):
		logger.Warn("provider error", zap.Error(err))
		writeErr = utils.WriteError(w, http.StatusBadGateway, err.Error(), details)

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// decodeAndValidate reads a JSON body into dst and validates it, writing a
// 400 response on failure. It reports whether the handler should continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) bool {
	if err := utils.DecodeJSON(r, dst); err != nil {
		logger.Debug("failed to parse request body", zap.Error(err))
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		logger.Debug("request validation failed", zap.Error(err))
		HandleValidationError(w, err, logger)
		return false
	}
	return true
}
