package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"intake-service/internal/models"
)

// CatalogHandler serves the treatment list and clinic directory
type CatalogHandler struct{}

func NewCatalogHandler() *CatalogHandler {
	return &CatalogHandler{}
}

// Treatments handles GET /api/v1/catalog/treatments
func (h *CatalogHandler) Treatments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"treatments": models.Treatments})
}

// Clinics handles GET /api/v1/catalog/clinics
func (h *CatalogHandler) Clinics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"clinics": models.Clinics})
}

// Clinic handles GET /api/v1/catalog/clinics/:id
func (h *CatalogHandler) Clinic(c *gin.Context) {
	clinic, ok := models.FindClinic(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Clinic not found."})
		return
	}
	c.JSON(http.StatusOK, clinic)
}
