package http

import (
	"errors"
	"net/http"
	"strconv"

	"jongga-screener/internal/screener/dto"
	"jongga-screener/internal/screener/generator"
	"jongga-screener/internal/screener/service"
	"jongga-screener/pkg/logger"
	"jongga-screener/pkg/utils"

	"github.com/labstack/echo/v4"
)

// ScreenerHandler handles HTTP requests for the screener.
type ScreenerHandler struct {
	screenerService service.ScreenerService
	logger          *logger.Logger
}

// NewScreenerHandler creates a new ScreenerHandler.
func NewScreenerHandler(screenerService service.ScreenerService, logger *logger.Logger) *ScreenerHandler {
	return &ScreenerHandler{screenerService: screenerService, logger: logger}
}

// RegisterRoutes registers the screener routes to the Echo group.
func (h *ScreenerHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/scan", h.StartScan)
	g.GET("/status", h.GetStatus)
	g.GET("/latest", h.GetLatest)
	g.GET("/signals", h.GetSignals)
	g.GET("/runs", h.GetRuns)
	g.POST("/signals/:code/reanalyze", h.ReanalyzeSignal)
	g.POST("/reset", h.Reset)
}

// StartScan triggers a scan cycle. A scan already in progress is rejected
// with 409, never queued.
func (h *ScreenerHandler) StartScan(c echo.Context) error {
	result, err := h.screenerService.Scan(c.Request().Context())
	if err != nil {
		if errors.Is(err, generator.ErrScanInProgress) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "scan already in progress"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, dto.ScanResponse{Result: result})
}

func (h *ScreenerHandler) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, dto.StatusResponse{Status: h.screenerService.Status()})
}

func (h *ScreenerHandler) GetLatest(c echo.Context) error {
	result, err := h.screenerService.LatestResult(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, dto.ScanResponse{Result: result})
}

// GetSignals lists the signals of one day; ?date=yyyy-mm-dd, default today.
func (h *ScreenerHandler) GetSignals(c echo.Context) error {
	date, err := dto.ParseDateParam(c.QueryParam("date"), utils.TimeNowKST())
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date, want yyyy-mm-dd"})
	}

	signals, err := h.screenerService.SignalsByDate(c.Request().Context(), date)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, dto.SignalsResponse{
		Date:    date.Format("2006-01-02"),
		Count:   len(signals),
		Signals: signals,
	})
}

// GetRuns lists recent scan runs; ?limit=N, default 10.
func (h *ScreenerHandler) GetRuns(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	runs, err := h.screenerService.RecentRuns(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, dto.RunsResponse{Count: len(runs), Runs: runs})
}

func (h *ScreenerHandler) ReanalyzeSignal(c echo.Context) error {
	code := c.Param("code")
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "stock code is required"})
	}

	signal, err := h.screenerService.Reanalyze(c.Request().Context(), code)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, dto.ReanalyzeResponse{
		Code:      code,
		Qualified: signal != nil,
		Signal:    signal,
	})
}

// Reset forces the scan state back to idle without cancelling in-flight work.
func (h *ScreenerHandler) Reset(c echo.Context) error {
	h.screenerService.Reset()
	h.logger.Info("Scan state reset via API")
	return c.JSON(http.StatusOK, dto.StatusResponse{Status: h.screenerService.Status()})
}
