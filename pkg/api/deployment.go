package api

import "time"

// CreateDeploymentRequest is the body of POST /deployments.
type CreateDeploymentRequest struct {
	ModelID string `json:"modelId" binding:"required"`
	UserID  string `json:"userId" binding:"required"`
	Chain   string `json:"chain" binding:"required,chain"`
	Price   string `json:"price" binding:"omitempty,decimal"`
}

// Deployment is the public shape of a deployment record.
type Deployment struct {
	ID              string    `json:"id"`
	ModelID         string    `json:"modelId"`
	UserID          string    `json:"userId"`
	Chain           string    `json:"chain"`
	Price           string    `json:"price,omitempty"`
	TransactionHash string    `json:"transactionHash"`
	ExplorerURL     string    `json:"explorerUrl,omitempty"`
	DeployedAt      time.Time `json:"deployedAt"`
}

// StatsOverview is the marketplace feed shown on the landing page.
type StatsOverview struct {
	TotalModels      int            `json:"totalModels"`
	TotalDeployments int            `json:"totalDeployments"`
	Volume24h        string         `json:"volume24h"`
	ByChain          map[string]int `json:"byChain"`
	GeneratedAt      time.Time      `json:"generatedAt"`
}

// DailyStats is one bucket of GET /stats/daily.
type DailyStats struct {
	Date        string `json:"date"`
	Deployments int    `json:"deployments"`
	Volume      string `json:"volume"`
}
