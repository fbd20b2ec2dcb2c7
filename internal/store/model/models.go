package model

import (
	"time"
)

// Deployment is a simulated on-chain deployment of a catalog model.
type Deployment struct {
	ID              int64     `db:"id" json:"id"`
	ModelID         string    `db:"model_id" json:"model_id"`
	UserID          string    `db:"user_id" json:"user_id"` // owner wallet address, opaque
	Chain           string    `db:"chain" json:"chain"`
	Price           string    `db:"price" json:"price"`               // as submitted
	PriceMicros     int64     `db:"price_micros" json:"price_micros"` // 0 when price was empty
	TransactionHash string    `db:"transaction_hash" json:"transaction_hash"`
	DeployedAt      time.Time `db:"deployed_at" json:"deployed_at"`
}

// AuditEvent represents a security or critical system event.
type AuditEvent struct {
	ID             string    `db:"id" json:"id"`
	ActorUserID    string    `db:"actor_user_id" json:"actor_user_id"`
	TargetResource string    `db:"target_resource" json:"target_resource"`
	Action         string    `db:"action" json:"action"`
	DetailsJSON    string    `db:"details_json" json:"details_json"`
	IPAddress      string    `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// DailyStats represents aggregated deployment activity for a specific day.
type DailyStats struct {
	Date         string `db:"date" json:"date"`
	Deployments  int    `db:"deployments" json:"deployments"`
	VolumeMicros int64  `db:"volume_micros" json:"volume_micros"`
}

// ChainCount is the number of deployments recorded on one chain.
type ChainCount struct {
	Chain       string `db:"chain" json:"chain"`
	Deployments int    `db:"deployments" json:"deployments"`
}
