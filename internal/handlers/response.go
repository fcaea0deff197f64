package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/AnshRaj112/serenify-conversations/internal/apperr"
	"github.com/AnshRaj112/serenify-conversations/internal/auth"
	"github.com/AnshRaj112/serenify-conversations/internal/logger"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// Envelope is the shape of every response body.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Envelope{Status: "success", Message: message, Data: data})
}

// writeError maps err onto the envelope. Unexpected errors are logged and reported
// with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).WithError(err).Error("Request failed")
	}
	writeJSON(w, status, Envelope{Status: "error", Message: message})
}

// decode reads a JSON body into dst and runs its validate tags.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("", "Request body is required")
		}
		return apperr.Validation("", fmt.Sprintf("Invalid request body: %v", err))
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperr.Validation(fieldPath(fe), describe(fe))
		}
		return apperr.Validation("", err.Error())
	}
	return nil
}

// fieldPath drops the struct name from the namespace, e.g. "sendRequest.attachments[0].url".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " long"
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "mongodb":
		return "invalid id"
	case "url":
		return "must be a valid URL"
	default:
		return "is invalid"
	}
}

// callerID returns the user id the caller middleware attached.
func callerID(r *http.Request) (string, error) {
	c, ok := auth.CallerFrom(r.Context())
	if !ok {
		return "", apperr.Unauthorized("Authentication required")
	}
	return c.UserID, nil
}
