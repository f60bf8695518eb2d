package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playcue/backend/internal/physics"
	"github.com/playcue/backend/internal/presets"
)

// ListPresets returns the names of every loaded table preset.
func ListPresets(store *presets.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"presets": store.List()})
	}
}

// GetPreset returns one preset's full physics configuration.
func GetPreset(store *presets.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")

		cfg, err := store.Get(name)
		if err != nil {
			switch {
			case errors.Is(err, presets.ErrBadName):
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid preset name"})
			case errors.Is(err, presets.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "preset not found"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"name": name, "config": cfg})
	}
}

// CreatePreset validates and saves a named physics configuration.
func CreatePreset(store *presets.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name   string                `json:"name"`
			Config physics.PhysicsConfig `json:"config"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name and config required"})
			return
		}

		if err := store.Save(req.Name, req.Config); err != nil {
			var cfgErr *physics.ConfigError
			switch {
			case errors.Is(err, presets.ErrBadName):
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid preset name"})
			case errors.As(err, &cfgErr):
				c.JSON(http.StatusBadRequest, gin.H{"error": cfgErr.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save preset"})
			}
			return
		}

		c.JSON(http.StatusCreated, gin.H{"name": req.Name})
	}
}
