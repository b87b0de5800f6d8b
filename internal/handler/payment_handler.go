package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"payflow/internal/middleware"
	"payflow/internal/model"
	"payflow/internal/service"
	"payflow/pkg/logger"
	"payflow/prometheus"
)

// PaymentHandler exposes the payment-request lifecycle over HTTP.
type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

func (h *PaymentHandler) Create(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordPaymentOperation("create")

	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
	}

	var req service.CreatePaymentInput
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse payment request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Amount <= 0 || req.Purpose == "" || req.ContractorID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount, purpose and contractorId are required"})
	}

	payment, err := h.payments.Create(c.Request().Context(), caller, req)
	if err != nil {
		return respondError(c, err)
	}

	prometheus.RecordPaymentTransition(string(model.StatusDraft))
	return c.JSON(http.StatusCreated, payment)
}

func (h *PaymentHandler) List(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
	}

	query, err := parseListQuery(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	items, total, err := h.payments.List(c.Request().Context(), caller, query)
	if err != nil {
		return respondError(c, err)
	}
	if items == nil {
		items = []model.PaymentRequest{}
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 21
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items":      items,
		"pagination": pagination{Total: total, Limit: limit, Offset: query.Offset},
	})
}

func (h *PaymentHandler) Get(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
	}

	payment, err := h.payments.Get(c.Request().Context(), caller, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) Update(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordPaymentOperation("update")

	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
	}

	var req service.UpdatePaymentInput
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse payment update", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	payment, err := h.payments.Update(c.Request().Context(), caller, c.Param("id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) Remove(c echo.Context) error {
	prometheus.RecordPaymentOperation("delete")

	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
	}

	if err := h.payments.Remove(c.Request().Context(), caller, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "payment request deleted"})
}

func (h *PaymentHandler) Submit(c echo.Context) error {
	prometheus.RecordPaymentOperation("submit")

	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
	}

	payment, err := h.payments.Submit(c.Request().Context(), caller, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}

	prometheus.RecordPaymentTransition(string(model.StatusPendingApproval))
	return c.JSON(http.StatusOK, payment)
}

func parseListQuery(c echo.Context) (service.ListPaymentsQuery, error) {
	query := service.ListPaymentsQuery{
		Status:       model.PaymentStatus(c.QueryParam("status")),
		ContractorID: c.QueryParam("contractorId"),
	}

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return query, errors.New("invalid limit")
		}
		query.Limit = limit
	}
	if raw := c.QueryParam("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return query, errors.New("invalid offset")
		}
		query.Offset = offset
	}
	if raw := c.QueryParam("dateFrom"); raw != "" {
		from, err := parseDate(raw)
		if err != nil {
			return query, err
		}
		query.DateFrom = &from
	}
	if raw := c.QueryParam("dateTo"); raw != "" {
		to, err := parseDate(raw)
		if err != nil {
			return query, err
		}
		query.DateTo = &to
	}
	return query, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.New("invalid date, expected RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}
