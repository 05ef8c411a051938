package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

func licenseIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "license_id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: license_id must be a uuid", domain.ErrInvalidInput)
	}
	return id, nil
}

func (h *Handler) createLicense(w http.ResponseWriter, r *http.Request) {
	var req application.CreateLicenseRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(w, r, "create_license", err)
		return
	}
	if err := h.validateStruct(req); err != nil {
		writeMappedError(w, r, "create_license", err)
		return
	}

	license, err := h.service.CreateLicense(r.Context(), req)
	if err != nil {
		writeMappedError(w, r, "create_license", err)
		return
	}
	logAdminMutation(r.Context(), "create_license", license.LicenseID.String())
	writeSuccess(w, http.StatusCreated, license)
}

func (h *Handler) listLicenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	isActive, err := parseBoolQuery(q.Get("is_active"))
	if err != nil {
		writeValidationError(w, r, "list_licenses", err)
		return
	}
	req := application.ListLicensesRequest{
		IsActive:       isActive,
		OrganizationID: q.Get("organization_id"),
		ProductID:      q.Get("product_id"),
		Limit:          parseIntDefault(q.Get("limit"), 0),
		Offset:         parseIntDefault(q.Get("offset"), 0),
	}
	items, err := h.service.ListLicenses(r.Context(), req)
	if err != nil {
		writeMappedError(w, r, "list_licenses", err)
		return
	}
	writeSuccess(w, http.StatusOK, contracts.ListResponse{Items: items, Count: len(items), Limit: req.Limit, Offset: req.Offset})
}

func (h *Handler) generateKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.service.GenerateLicenseKey(r.Context())
	if err != nil {
		writeMappedError(w, r, "generate_license_key", err)
		return
	}
	writeSuccess(w, http.StatusOK, application.GeneratedKeyResponse{LicenseKey: key})
}

func (h *Handler) getLicense(w http.ResponseWriter, r *http.Request) {
	id, err := licenseIDParam(r)
	if err != nil {
		writeMappedError(w, r, "get_license", err)
		return
	}
	detail, err := h.service.GetLicense(r.Context(), id)
	if err != nil {
		writeMappedError(w, r, "get_license", err)
		return
	}
	writeSuccess(w, http.StatusOK, detail)
}

func (h *Handler) getLicenseByKey(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetLicenseByKey(r.Context(), chi.URLParam(r, "license_key"))
	if err != nil {
		writeMappedError(w, r, "get_license_by_key", err)
		return
	}
	writeSuccess(w, http.StatusOK, detail)
}

func (h *Handler) updateLicense(w http.ResponseWriter, r *http.Request) {
	id, err := licenseIDParam(r)
	if err != nil {
		writeMappedError(w, r, "update_license", err)
		return
	}
	var req application.UpdateLicenseRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(w, r, "update_license", err)
		return
	}
	if err := h.validateStruct(req); err != nil {
		writeMappedError(w, r, "update_license", err)
		return
	}

	license, err := h.service.UpdateLicense(r.Context(), id, req)
	if err != nil {
		writeMappedError(w, r, "update_license", err)
		return
	}
	logAdminMutation(r.Context(), "update_license", license.LicenseID.String())
	writeSuccess(w, http.StatusOK, license)
}

func (h *Handler) enableLicense(w http.ResponseWriter, r *http.Request) {
	h.setLicenseActive(w, r, "enable_license", true)
}

func (h *Handler) disableLicense(w http.ResponseWriter, r *http.Request) {
	h.setLicenseActive(w, r, "disable_license", false)
}

func (h *Handler) setLicenseActive(w http.ResponseWriter, r *http.Request, operation string, active bool) {
	id, err := licenseIDParam(r)
	if err != nil {
		writeMappedError(w, r, operation, err)
		return
	}
	license, err := h.service.SetLicenseActive(r.Context(), id, active)
	if err != nil {
		writeMappedError(w, r, operation, err)
		return
	}
	logAdminMutation(r.Context(), operation, license.LicenseID.String())
	writeSuccess(w, http.StatusOK, license)
}

func (h *Handler) deleteLicense(w http.ResponseWriter, r *http.Request) {
	id, err := licenseIDParam(r)
	if err != nil {
		writeMappedError(w, r, "delete_license", err)
		return
	}
	if err := h.service.DeleteLicense(r.Context(), id); err != nil {
		writeMappedError(w, r, "delete_license", err)
		return
	}
	logAdminMutation(r.Context(), "delete_license", id.String())
	writeMessage(w, http.StatusOK, "license deleted")
}

func (h *Handler) listLicenseActivations(w http.ResponseWriter, r *http.Request) {
	id, err := licenseIDParam(r)
	if err != nil {
		writeMappedError(w, r, "list_license_activations", err)
		return
	}
	q := r.URL.Query()
	req := application.ListActivationsRequest{
		LicenseID:  &id,
		ActiveOnly: q.Get("active_only") == "true",
		Limit:      parseIntDefault(q.Get("limit"), 0),
		Offset:     parseIntDefault(q.Get("offset"), 0),
	}
	items, err := h.service.ListActivations(r.Context(), req)
	if err != nil {
		writeMappedError(w, r, "list_license_activations", err)
		return
	}
	writeSuccess(w, http.StatusOK, contracts.ListResponse{Items: items, Count: len(items), Limit: req.Limit, Offset: req.Offset})
}

func (h *Handler) listActivations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := application.ListActivationsRequest{
		LicenseKey: strings.TrimSpace(q.Get("license_key")),
		ActiveOnly: q.Get("active_only") == "true",
		Limit:      parseIntDefault(q.Get("limit"), 0),
		Offset:     parseIntDefault(q.Get("offset"), 0),
	}
	var (
		items []domain.Activation
		err   error
	)
	if req.LicenseKey != "" {
		items, err = h.service.ListActivations(r.Context(), req)
	} else {
		items, err = h.service.ListAllActivations(r.Context(), req)
	}
	if err != nil {
		writeMappedError(w, r, "list_activations", err)
		return
	}
	writeSuccess(w, http.StatusOK, contracts.ListResponse{Items: items, Count: len(items), Limit: req.Limit, Offset: req.Offset})
}
