package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"relaydesk-backend/internal/syncjob"

	"github.com/gin-gonic/gin"
)

const ollamaProbeTimeout = 5 * time.Second

// OllamaSettings can be changed from the dashboard without a restart.
// The reply generator reads them on every call.
type OllamaSettings struct {
	BaseURL string `json:"ollama_base_url"`
	Model   string `json:"ollama_model,omitempty"`
}

type settingsStore struct {
	mu     sync.RWMutex
	ollama OllamaSettings
}

func (s *settingsStore) get() OllamaSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ollama
}

func (s *settingsStore) set(next OllamaSettings) OllamaSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ollama.BaseURL = strings.TrimRight(next.BaseURL, "/")
	if next.Model != "" {
		s.ollama.Model = next.Model
	}
	return s.ollama
}

var runtimeSettings settingsStore

// InitRuntimeConfig seeds the runtime settings from static config
func InitRuntimeConfig(ollamaBaseURL, ollamaModel string) {
	runtimeSettings.set(OllamaSettings{BaseURL: ollamaBaseURL, Model: ollamaModel})
}

func GetRuntimeOllamaBaseURL() string { return runtimeSettings.get().BaseURL }

func GetRuntimeOllamaModel() string { return runtimeSettings.get().Model }

// GET /api/settings/ollama
func GetOllamaSettings(c *gin.Context) {
	c.JSON(http.StatusOK, runtimeSettings.get())
}

// PUT /api/settings/ollama
func UpdateOllamaSettings(c *gin.Context) {
	var req struct {
		BaseURL string `json:"ollama_base_url" binding:"required"`
		Model   string `json:"ollama_model"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current := runtimeSettings.set(OllamaSettings{BaseURL: req.BaseURL, Model: req.Model})
	c.JSON(http.StatusOK, gin.H{
		"message":         "Ollama settings updated successfully",
		"ollama_base_url": current.BaseURL,
		"ollama_model":    current.Model,
	})
}

// TestOllamaConnection lists the server's models and reports whether the
// configured one is installed.
// POST /api/settings/ollama/test
func TestOllamaConnection(c *gin.Context) {
	current := runtimeSettings.get()
	var req struct {
		BaseURL string `json:"ollama_base_url"`
	}
	// empty body probes the current settings
	_ = c.ShouldBindJSON(&req)
	baseURL := strings.TrimRight(req.BaseURL, "/")
	if baseURL == "" {
		baseURL = current.BaseURL
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ollamaProbeTimeout)
	defer cancel()
	probe, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"connected": false, "error": err.Error()})
		return
	}
	resp, err := http.DefaultClient.Do(probe)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"connected": false, "error": err.Error()})
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.JSON(http.StatusServiceUnavailable, gin.H{"connected": false, "status_code": resp.StatusCode})
		return
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	modelFound := false
	if err := json.NewDecoder(resp.Body).Decode(&tags); err == nil {
		for _, m := range tags.Models {
			if m.Name == current.Model || strings.TrimSuffix(m.Name, ":latest") == current.Model {
				modelFound = true
				break
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"connected":       true,
		"ollama_base_url": baseURL,
		"model":           current.Model,
		"model_installed": modelFound,
	})
}

// GetSyncStatus returns the health of every background job
// GET /api/sync/status
func (h *Handler) GetSyncStatus(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": h.jobs.Statuses()})
}

// RunSyncJob starts an immediate pass of one job
// POST /api/sync/:job/run
func (h *Handler) RunSyncJob(c *gin.Context) {
	var job *syncjob.Job
	if h.jobs != nil {
		job = h.jobs.Get(c.Param("job"))
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	job.TriggerNow(context.Background())
	c.JSON(http.StatusAccepted, gin.H{"message": "job triggered", "job": job.Name()})
}
