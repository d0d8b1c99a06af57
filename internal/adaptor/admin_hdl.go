package adaptor

import (
	"errors"
	"net/http"

	"phone-auth/internal/dto/request"
	"phone-auth/internal/usecase"
	"phone-auth/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AdminHandler exposes read-only record browsing for staff accounts.
type AdminHandler struct {
	service usecase.UserService
	log     *zap.Logger
}

func NewAdminHandler(service usecase.UserService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		log:     log,
	}
}

func parsePagination(r *http.Request) request.Pagination {
	p := request.Pagination{
		Page:    utils.ParseInt(r.URL.Query().Get("page"), 1),
		PerPage: utils.ParseInt(r.URL.Query().Get("per_page"), 20),
	}
	p.Normalize()
	return p
}

// ListUsers handles GET /api/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	p := parsePagination(r)

	resp, err := h.service.ListUsers(r.Context(), p.Page, p.PerPage)
	if err != nil {
		h.log.Error("Failed to list users", zap.Error(err))
		utils.ResponseInternalError(w, "Internal server error")
		return
	}

	utils.ResponseSuccess(w, "Users retrieved", resp)
}

// GetUser handles GET /api/admin/users/{id}
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid user ID", nil)
		return
	}

	resp, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, usecase.ErrNotFound) {
			utils.ResponseNotFound(w, "User not found")
			return
		}
		h.log.Error("Failed to get user", zap.Error(err))
		utils.ResponseInternalError(w, "Internal server error")
		return
	}

	utils.ResponseSuccess(w, "User retrieved", resp)
}

// ListOTPCodes handles GET /api/admin/otp-codes
func (h *AdminHandler) ListOTPCodes(w http.ResponseWriter, r *http.Request) {
	p := parsePagination(r)

	resp, err := h.service.ListOTPCodes(r.Context(), p.Page, p.PerPage)
	if err != nil {
		h.log.Error("Failed to list OTP codes", zap.Error(err))
		utils.ResponseInternalError(w, "Internal server error")
		return
	}

	utils.ResponseSuccess(w, "OTP codes retrieved", resp)
}
