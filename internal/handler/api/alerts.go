package api

import (
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"SignalPulse/internal/domain/models"
	xhttp "SignalPulse/pkg/http"
	xlogger "SignalPulse/pkg/logger"
)

func (h *Handler) CreateAlert(c echo.Context) error {
	req := &models.CreateAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	threshold, err := decimal.NewFromString(req.Threshold)
	if err != nil || !threshold.IsPositive() {
		return xhttp.AppErrorResponse(c, xhttp.UnprocessableErrorf("threshold", "threshold must be a positive number"))
	}
	sub, err := h.alerts.Create(req.InstrumentID, threshold, models.Comparison(req.Type), req.Owner)
	if err != nil {
		return xhttp.AppErrorResponse(c, appError(err))
	}
	h.log.Info("alert created",
		xlogger.String("id", sub.ID),
		xlogger.String("instrument", sub.InstrumentID),
		xlogger.String("owner", sub.Owner))
	return xhttp.CreatedResponse(c, sub)
}

func (h *Handler) ListAlerts(c echo.Context) error {
	req := &models.ListAlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	subs := h.alerts.List(req.Owner)
	return xhttp.ListResponse(c, subs, int64(len(subs)))
}

func (h *Handler) DeleteAlert(c echo.Context) error {
	req := &models.AlertIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.alerts.Delete(req.ID, req.Owner); err != nil {
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.NoContentResponse(c)
}

func (h *Handler) ToggleAlert(c echo.Context) error {
	req := &models.ToggleAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sub, err := h.alerts.SetEnabled(req.ID, req.Owner, *req.Enabled)
	if err != nil {
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.SuccessResponse(c, sub)
}
