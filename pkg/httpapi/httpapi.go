package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// A single validator instance is used, because it caches struct parsing.
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Response is the body of every non-2xx reply.
type Response struct {
	Detail string  `json:"detail"`
	Errors []Error `json:"errors,omitempty"`
}

// Error is scoped to one input field.
type Error struct {
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

// Write outputs response as JSON with the given status.
func Write(rw http.ResponseWriter, status int, response any) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(response); err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	_, _ = rw.Write(buf.Bytes())
}

// WriteDetail writes a Response carrying only a message.
func WriteDetail(rw http.ResponseWriter, status int, detail string) {
	Write(rw, status, Response{Detail: detail})
}

// Decode reads the JSON body into value without validating it. On failure
// the response has already been written and false is returned.
func Decode(rw http.ResponseWriter, r *http.Request, value any) bool {
	err := json.NewDecoder(r.Body).Decode(value)
	if err == nil {
		return true
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		WriteDetail(rw, http.StatusRequestEntityTooLarge, "Request entity too large")
		return false
	}
	WriteDetail(rw, http.StatusBadRequest, fmt.Sprintf("read body: %s", err.Error()))
	return false
}

// WriteValidation writes a 422 listing every invalid field.
func WriteValidation(rw http.ResponseWriter, apiErrors []Error) {
	Write(rw, http.StatusUnprocessableEntity, Response{
		Detail: "Validation failed",
		Errors: apiErrors,
	})
}

// Validate runs the struct validator and converts failures into field errors.
// Field names are json paths without the root type, e.g.
// "data.moodReports[0].mood".
func Validate(value any) []Error {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []Error{{Field: "", Detail: err.Error()}}
	}

	apiErrors := make([]Error, 0, len(validationErrors))
	for _, ve := range validationErrors {
		field := ve.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		apiErrors = append(apiErrors, Error{
			Field:  field,
			Detail: fmt.Sprintf("Validation failed for tag %q with value: \"%v\"", ve.Tag(), ve.Value()),
		})
	}
	return apiErrors
}
