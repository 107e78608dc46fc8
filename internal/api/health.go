package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthStatus reports which subsystems this deployment is running with.
type HealthStatus struct {
	Storage   string `json:"storage"`
	Knowledge string `json:"knowledge"`
	Media     bool   `json:"media"`
}

// Health returns a handler answering liveness checks with the overall
// status and the subsystem availability snapshot taken at startup.
func Health(status HealthStatus) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":     "ok",
			"subsystems": status,
		})
	}
}
