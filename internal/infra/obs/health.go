package obs

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Check tests one backend the service cannot work without.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthHandlers serves /livez and /readyz. Readiness fails while any check
// fails and reports every check by name.
type HealthHandlers struct {
	Checks  []Check
	Timeout time.Duration
}

func (h HealthHandlers) Livez(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (h HealthHandlers) Readyz(c *gin.Context) {
	if len(h.Checks) == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	status, code := "ready", http.StatusOK
	results := make(map[string]string, len(h.Checks))
	for _, check := range h.Checks {
		if err := check.Probe(ctx); err != nil {
			results[check.Name] = err.Error()
			status, code = "not ready", http.StatusServiceUnavailable
			continue
		}
		results[check.Name] = "ok"
	}
	c.JSON(code, gin.H{"status": status, "checks": results})
}
