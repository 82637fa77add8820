package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/civicsquare/server/internal/api/problem"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON parses the request body into dst and rejects unknown fields so
// typos surface as 400s instead of silently dropped input.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

// decodeAndValidate combines body decoding with struct-tag validation and
// writes the problem response itself on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any, env string) bool {
	if err := decodeJSON(r, dst); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request body", err, env)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Validation failed", err, env,
				problem.WithErrors(validationErrors(fieldErrs)))
			return false
		}
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Validation failed", err, env)
		return false
	}
	return true
}

func validationErrors(fieldErrs validator.ValidationErrors) map[string]interface{} {
	out := make(map[string]interface{}, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[strings.ToLower(fe.Field())] = validationMessage(fe)
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return "Ensure this field has at least " + fe.Param() + " characters."
	case "max":
		return "Ensure this field has no more than " + fe.Param() + " characters."
	case "gt":
		return "Ensure this value is greater than " + fe.Param() + "."
	default:
		return "Invalid value."
	}
}

func pathParam(r *http.Request, key string) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.PathValue(key))
}
