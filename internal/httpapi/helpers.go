package httpapi

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v3"

	"github.com/rendis/flowgen/internal/logging"
	"github.com/rendis/flowgen/pkg/schema"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error *schema.FlowError `json:"error"`
}

// statusFor maps an error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeValidation, schema.ErrCodeDecode, schema.ErrCodeInvalidName:
		return http.StatusBadRequest
	case schema.ErrCodeDuplicateName:
		return http.StatusConflict
	case schema.ErrCodeStore, "":
		return http.StatusInternalServerError
	default:
		// graph, limit and execution failures: the request was understood
		// but the project cannot satisfy it
		return http.StatusUnprocessableEntity
	}
}

// handleError is the fiber error handler. FlowErrors keep their code; fiber
// errors keep their status.
func (s *Server) handleError(c fiber.Ctx, err error) error {
	var fe *schema.FlowError
	var ferr *fiber.Error
	switch {
	case errors.As(err, &fe):
	case errors.As(err, &ferr):
		code := schema.ErrCodeValidation
		switch ferr.Code {
		case http.StatusNotFound:
			code = schema.ErrCodeNotFound
		case http.StatusInternalServerError:
			code = ""
		}
		return c.Status(ferr.Code).JSON(errorBody{Error: &schema.FlowError{Code: code, Message: ferr.Message}})
	default:
		fe = schema.NewError("", err.Error())
	}

	status := statusFor(fe.Code)
	if status >= http.StatusInternalServerError {
		logging.LogWith(c.Context(), s.deps.Logger).Error("request failed", "error", err)
	}
	return c.Status(status).JSON(errorBody{Error: fe})
}

// bindJSON decodes the request body into v. An empty body leaves v as is.
func bindJSON(c fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.Bind().JSON(v); err != nil {
		return schema.NewError(schema.ErrCodeDecode, "request body is not valid JSON").WithCause(err)
	}
	return nil
}

// queryInt extracts an integer query param with a default value.
func queryInt(c fiber.Ctx, key string, def int) int {
	return fiber.Query[int](c, key, def)
}
