package api

// Model is a marketplace catalog entry. The mapstructure tags let the catalog
// be decoded straight from catalog.yaml.
type Model struct {
	ID            string   `mapstructure:"id" json:"id"`
	Name          string   `mapstructure:"name" json:"name"`
	Description   string   `mapstructure:"description" json:"description"`
	Image         string   `mapstructure:"image" json:"image"`
	Price         string   `mapstructure:"price" json:"price"` // decimal, in the chain's native currency
	Performance   string   `mapstructure:"performance" json:"performance"`
	Compatibility []string `mapstructure:"compatibility" json:"compatibility"`
	Creator       string   `mapstructure:"creator" json:"creator"`
	Chain         string   `mapstructure:"chain" json:"chain"`
}

// Chain describes a supported network.
type Chain struct {
	ID          int64    `mapstructure:"id" json:"id"`
	Name        string   `mapstructure:"name" json:"name"`
	Symbol      string   `mapstructure:"symbol" json:"symbol"`
	RPCURL      string   `mapstructure:"rpc_url" json:"rpcUrl"`
	ExplorerURL string   `mapstructure:"explorer_url" json:"explorerUrl"`
	Aliases     []string `mapstructure:"aliases" json:"aliases,omitempty"`
}
