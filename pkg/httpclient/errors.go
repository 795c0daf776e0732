package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/KingHarry001/portfolio/pkg/errors"
)

// maxErrorBody caps how much of a failed response is read.
const maxErrorBody = 64 << 10

// DownstreamErrorResponse is the {"error":{code,message}} envelope written by
// httputil.WriteError. Identity providers that use the same shape get their
// codes preserved.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	// Msg covers providers that answer {"msg": "..."} or {"message": "..."}.
	Msg     string `json:"msg"`
	Message string `json:"message"`
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into an AppError carrying the matching sentinel. The body is consumed and
// closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var downstream DownstreamErrorResponse
	if json.Unmarshal(body, &downstream) == nil {
		switch {
		case downstream.Error != nil:
			return mapDownstreamError(resp.StatusCode, downstream.Error.Code, downstream.Error.Message, serviceName)
		case downstream.Msg != "":
			return mapDownstreamError(resp.StatusCode, "", downstream.Msg, serviceName)
		case downstream.Message != "":
			return mapDownstreamError(resp.StatusCode, "", downstream.Message, serviceName)
		}
	}

	return mapDownstreamError(resp.StatusCode, "", string(body), serviceName)
}

func mapDownstreamError(status int, code, message, serviceName string) error {
	qualified := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(qualified)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualified)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualified)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualified)
	case status == http.StatusGone:
		return apperrors.Gone(qualified)
	case status == http.StatusTooManyRequests, status == http.StatusServiceUnavailable:
		if code == "" {
			code = "SERVICE_UNAVAILABLE"
		}
		return &apperrors.AppError{
			Code:    code,
			Message: qualified,
			Status:  http.StatusServiceUnavailable,
			Err:     apperrors.ErrServiceUnavail,
		}
	case status >= 500:
		return fmt.Errorf("%s server error (%d): %s", serviceName, status, message)
	default:
		return &apperrors.AppError{
			Code:    code,
			Message: qualified,
			Status:  status,
		}
	}
}
