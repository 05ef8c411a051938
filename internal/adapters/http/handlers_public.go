package http

import (
	"net/http"
	"strings"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/contracts"
)

const unknownUserAgent = "Unknown"

// Business refusals (unknown key, expired, domain not allowed, at capacity) are
// answered with 200 and is_valid/success=false. Only malformed requests and
// infrastructure failures produce error statuses.

func (h *Handler) validateLicense(w http.ResponseWriter, r *http.Request) {
	var body contracts.LicenseCheckRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeValidationError(w, r, "validate_license", err)
		return
	}
	req := application.ValidateRequest{LicenseKey: body.Key(), Domain: strings.TrimSpace(body.Domain)}
	if err := h.validateStruct(req); err != nil {
		writeMappedError(w, r, "validate_license", err)
		return
	}

	res, err := h.service.Validate(r.Context(), req)
	if err != nil {
		writeMappedError(w, r, "validate_license", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) activateLicense(w http.ResponseWriter, r *http.Request) {
	var body contracts.LicenseCheckRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeValidationError(w, r, "activate_license", err)
		return
	}
	userAgent := strings.TrimSpace(r.UserAgent())
	if userAgent == "" {
		userAgent = unknownUserAgent
	}
	req := application.ActivateRequest{
		LicenseKey: body.Key(),
		Domain:     strings.TrimSpace(body.Domain),
		IPAddress:  clientIP(r),
		UserAgent:  userAgent,
	}
	if err := h.validateStruct(req); err != nil {
		writeMappedError(w, r, "activate_license", err)
		return
	}

	res, err := h.service.Activate(r.Context(), req)
	if err != nil {
		writeMappedError(w, r, "activate_license", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) deactivateLicense(w http.ResponseWriter, r *http.Request) {
	var body contracts.LicenseCheckRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeValidationError(w, r, "deactivate_license", err)
		return
	}
	req := application.DeactivateRequest{LicenseKey: body.Key(), Domain: strings.TrimSpace(body.Domain)}
	if err := h.validateStruct(req); err != nil {
		writeMappedError(w, r, "deactivate_license", err)
		return
	}

	res, err := h.service.Deactivate(r.Context(), req)
	if err != nil {
		writeMappedError(w, r, "deactivate_license", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
