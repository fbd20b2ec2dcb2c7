package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/modelmart/pkg/api"
)

type ChainLister interface {
	List() []api.Chain
}

type ChainHandler struct {
	chains ChainLister
}

func NewChainHandler(chains ChainLister) *ChainHandler {
	return &ChainHandler{chains: chains}
}

// List returns the networks deployments may target.
//
// GET /api/v1/chains
func (h *ChainHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.chains.List())
}
