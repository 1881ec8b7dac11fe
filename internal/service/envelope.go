package service

import "github.com/hybridmem/memory-service/internal/apperr"

// Envelope is the uniform {status, message, ...data} response shape every
// engine operation returns, per the service's external interface contract.
// Errors carry the same shape with error_details instead of free-form data.
type Envelope map[string]interface{}

// OK builds a successful envelope, merging the given data fields alongside
// status and message.
func OK(message string, data map[string]interface{}) Envelope {
	env := Envelope{"status": "ok", "message": message}
	for k, v := range data {
		env[k] = v
	}
	return env
}

// Err builds an error envelope from err. If err is or wraps an *apperr.Error
// its kind is surfaced under error_details; its details are added only when
// err is the *apperr.Error itself. Any other error is reported as an internal
// kind with only its message.
func Err(err error) Envelope {
	kind := apperr.KindOf(err)
	details := map[string]interface{}{"kind": string(kind)}
	var ae *apperr.Error
	if e, ok := err.(*apperr.Error); ok {
		ae = e
	}
	if ae != nil {
		for k, v := range ae.Details() {
			details[k] = v
		}
	}
	return Envelope{
		"status":        "error",
		"message":       err.Error(),
		"error_details": details,
	}
}

// IsOK reports whether the envelope represents a successful operation.
func (e Envelope) IsOK() bool {
	status, _ := e["status"].(string)
	return status == "ok"
}
