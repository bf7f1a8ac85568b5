package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arif-dev/tuition-track-api/internal/dto"
	"github.com/arif-dev/tuition-track-api/internal/middleware"
	"github.com/arif-dev/tuition-track-api/internal/models"
	"github.com/arif-dev/tuition-track-api/internal/service"
	appErrors "github.com/arif-dev/tuition-track-api/pkg/errors"
	"github.com/arif-dev/tuition-track-api/pkg/response"
)

// FeeHandler handles fee recalculation and payment endpoints.
type FeeHandler struct {
	service *service.FeeService
}

// NewFeeHandler creates a new fee handler.
func NewFeeHandler(svc *service.FeeService) *FeeHandler {
	return &FeeHandler{service: svc}
}

// Recalculate godoc
// @Summary Recalculate fees
// @Description Recompute dues for a month across students
// @Tags Fees
// @Accept json
// @Produce json
// @Param payload body dto.RecalculateRequest true "Recalculation payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /fees/recalculate [post]
func (h *FeeHandler) Recalculate(c *gin.Context) {
	var req dto.RecalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid recalculation payload"))
		return
	}

	res, err := h.service.Recalculate(c.Request.Context(), req, nil)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// StudentFees godoc
// @Summary List student dues
// @Description List every recorded due for a student. Students only see their own.
// @Tags Fees
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /students/{id}/fees [get]
func (h *FeeHandler) StudentFees(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	studentID := c.Param("id")
	if claims.Role == models.RoleStudent && claims.UserID != studentID {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	res, err := h.service.StudentFees(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Pay godoc
// @Summary Mark due as paid
// @Description Mark a student's monthly due as paid exactly once
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param month path string true "Month key (YYYY-MM)"
// @Param payload body dto.PayRequest false "Payment payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /students/{id}/fees/{month}/pay [post]
func (h *FeeHandler) Pay(c *gin.Context) {
	var req dto.PayRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment payload"))
			return
		}
	}

	res, err := h.service.MarkPaid(c.Request.Context(), c.Param("id"), c.Param("month"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Receipt godoc
// @Summary Download payment receipt
// @Description Render a PDF receipt for a paid due
// @Tags Fees
// @Produce application/pdf
// @Param id path string true "Student ID"
// @Param month path string true "Month key (YYYY-MM)"
// @Success 200 {file} binary
// @Failure 412 {object} response.Envelope
// @Router /students/{id}/fees/{month}/receipt [get]
func (h *FeeHandler) Receipt(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	studentID := c.Param("id")
	if claims.Role == models.RoleStudent && claims.UserID != studentID {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	payload, err := h.service.Receipt(c.Request.Context(), studentID, c.Param("month"))
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("receipt-%s-%s.pdf", c.Param("month"), studentID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", payload)
}
