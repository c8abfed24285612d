package restserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kiwibes/kiwibesd/internal/kerrors"
)

// errorBody is the response-contract shape for every failed call:
// {"error": <code>, "message": <text>}.
type errorBody struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// writeError maps err to its HTTP status and emits the error-body
// contract. Any error that isn't a *kerrors.Err is treated as an
// internal server error.
func writeError(c echo.Context, err error) error {
	code, message, ok := kerrors.As(err)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody{
			Error:   int(kerrors.ProcessLaunchFailed),
			Message: err.Error(),
		})
	}
	return c.JSON(code.HTTPStatus(), errorBody{Error: int(code), Message: message})
}

// httpErrorHandler adapts Echo's own HTTP errors (routing, body
// decoding, validator failures) into the same {error, message}
// contract, with EMPTY_REST_REQUEST standing in as the generic
// "malformed call" code for anything Echo itself rejected.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	if he, ok := err.(*echo.HTTPError); ok && he.Code == http.StatusNotFound {
		_ = c.HTML(http.StatusNotFound, "<p>ERROR</p>")
		return
	}

	message := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		if m, ok := he.Message.(string); ok {
			message = m
		}
	}

	_ = c.JSON(http.StatusBadRequest, errorBody{
		Error:   int(kerrors.EmptyRestRequest),
		Message: message,
	})
}
