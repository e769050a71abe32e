package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/service"
)

type APIKeyHandler struct {
	service *service.APIKeyService
	presets map[string]struct{}
}

func NewAPIKeyHandler(service *service.APIKeyService, presetNames []string) *APIKeyHandler {
	presets := make(map[string]struct{}, len(presetNames))
	for _, name := range presetNames {
		presets[name] = struct{}{}
	}
	return &APIKeyHandler{service: service, presets: presets}
}

func (h *APIKeyHandler) Create(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		CreatedBy string `json:"created_by"`
		Preset    string `json:"preset" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, ok := h.presets[req.Preset]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown rate limit preset"})
		return
	}

	ctx := c.Request.Context()
	key, err := h.service.Create(ctx, req.Name, req.CreatedBy, req.Preset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"key":     key,
		"message": "Save this key - it won't be shown again",
	})
}

func (h *APIKeyHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	keys, err := h.service.List(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, keys)
}

func (h *APIKeyHandler) Get(c *gin.Context) {
	id := c.Param("id")

	ctx := c.Request.Context()
	apiKey, err := h.service.Get(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if apiKey == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
		return
	}

	c.JSON(http.StatusOK, apiKey)
}

func (h *APIKeyHandler) Update(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		Preset   *string `json:"preset"`
		IsActive *bool   `json:"is_active"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := make(map[string]interface{})
	if req.Preset != nil {
		if _, ok := h.presets[*req.Preset]; !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown rate limit preset"})
			return
		}
		updates["preset"] = *req.Preset
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No fields to update"})
		return
	}

	ctx := c.Request.Context()
	if err := h.service.Update(ctx, id, updates); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API key updated successfully"})
}

func (h *APIKeyHandler) Delete(c *gin.Context) {
	id := c.Param("id")

	ctx := c.Request.Context()
	if err := h.service.Delete(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API key deleted successfully"})
}
