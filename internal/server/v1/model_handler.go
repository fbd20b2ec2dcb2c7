package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/modelmart/internal/catalog"
	"github.com/nulzo/modelmart/pkg/api"
)

// ModelCatalog is the read side of the model catalog.
type ModelCatalog interface {
	List() []api.Model
	Get(id string) (api.Model, error)
}

type ModelHandler struct {
	catalog ModelCatalog
}

func NewModelHandler(c ModelCatalog) *ModelHandler {
	return &ModelHandler{catalog: c}
}

// List returns every model in catalog order.
//
// GET /api/v1/models
func (h *ModelHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.List())
}

// Get returns a single model.
//
// GET /api/v1/models/:id
func (h *ModelHandler) Get(c *gin.Context) {
	m, err := h.catalog.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrModelNotFound) {
			_ = c.Error(api.NotFoundError("Model not found"))
			return
		}
		_ = c.Error(api.InternalError("Failed to fetch model", err))
		return
	}

	c.JSON(http.StatusOK, m)
}
