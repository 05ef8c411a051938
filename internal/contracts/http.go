package contracts

import "strings"

type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Status    string       `json:"status"`
	Code      string       `json:"code,omitempty"`
	Message   string       `json:"message,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
	Error     ErrorPayload `json:"error"`
}

// LicenseCheckRequest is the body of the public validate, activate and deactivate calls.
// Older clients send the key as licenseKey.
type LicenseCheckRequest struct {
	LicenseKey       string `json:"license_key"`
	LegacyLicenseKey string `json:"licenseKey,omitempty"`
	Domain           string `json:"domain"`
}

func (r LicenseCheckRequest) Key() string {
	if key := strings.TrimSpace(r.LicenseKey); key != "" {
		return key
	}
	return strings.TrimSpace(r.LegacyLicenseKey)
}

type ListResponse struct {
	Items  any `json:"items"`
	Count  int `json:"count"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
