package v1

import (
	"strconv"

	"github.com/nulzo/modelmart/internal/store/model"
	"github.com/nulzo/modelmart/pkg/api"
)

// ExplorerLinker builds block explorer links for transaction hashes.
type ExplorerLinker interface {
	ExplorerURL(chainName, txHash string) string
}

func toDeployment(d *model.Deployment, links ExplorerLinker) api.Deployment {
	return api.Deployment{
		ID:              strconv.FormatInt(d.ID, 10),
		ModelID:         d.ModelID,
		UserID:          d.UserID,
		Chain:           d.Chain,
		Price:           d.Price,
		TransactionHash: d.TransactionHash,
		ExplorerURL:     links.ExplorerURL(d.Chain, d.TransactionHash),
		DeployedAt:      d.DeployedAt,
	}
}

func toDeployments(ds []model.Deployment, links ExplorerLinker) []api.Deployment {
	out := make([]api.Deployment, 0, len(ds))
	for i := range ds {
		out = append(out, toDeployment(&ds[i], links))
	}
	return out
}
