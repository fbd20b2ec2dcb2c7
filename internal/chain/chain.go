// Package chain knows which networks the marketplace can deploy to and how to
// mint the simulated transaction hashes that stand in for real submissions.
package chain

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nulzo/modelmart/pkg/api"
)

var ErrUnknownChain = errors.New("unknown chain")

// Defaults are the networks supported out of the box.
var Defaults = []api.Chain{
	{ID: 1, Name: "Ethereum", Symbol: "ETH", RPCURL: "https://eth.llamarpc.com", ExplorerURL: "https://etherscan.io", Aliases: []string{"eth", "mainnet"}},
	{ID: 137, Name: "Polygon", Symbol: "MATIC", RPCURL: "https://polygon-rpc.com", ExplorerURL: "https://polygonscan.com", Aliases: []string{"matic"}},
	{ID: 56, Name: "Binance Smart Chain", Symbol: "BNB", RPCURL: "https://bsc-dataseed.binance.org", ExplorerURL: "https://bscscan.com", Aliases: []string{"bsc", "bnb"}},
	{ID: 0, Name: "Solana", Symbol: "SOL", RPCURL: "https://api.mainnet-beta.solana.com", ExplorerURL: "https://solscan.io", Aliases: []string{"sol"}},
}

// Directory resolves chain names and aliases case-insensitively.
type Directory struct {
	chains []api.Chain
	byName map[string]int
	rand   io.Reader
}

func NewDirectory(chains []api.Chain) (*Directory, error) {
	d := &Directory{
		chains: make([]api.Chain, 0, len(chains)),
		byName: make(map[string]int),
		rand:   rand.Reader,
	}

	for _, c := range chains {
		if c.Name == "" {
			return nil, errors.New("chain with empty name")
		}
		idx := len(d.chains)
		for _, n := range append([]string{c.Name}, c.Aliases...) {
			key := strings.ToLower(n)
			if _, dup := d.byName[key]; dup {
				return nil, fmt.Errorf("chain name %q registered twice", n)
			}
			d.byName[key] = idx
		}
		d.chains = append(d.chains, c)
	}

	return d, nil
}

// List returns the chains in registration order.
func (d *Directory) List() []api.Chain {
	out := make([]api.Chain, len(d.chains))
	copy(out, d.chains)
	return out
}

// Lookup finds a chain by name or alias.
func (d *Directory) Lookup(name string) (api.Chain, error) {
	i, ok := d.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return api.Chain{}, fmt.Errorf("%w: %q", ErrUnknownChain, name)
	}
	return d.chains[i], nil
}

// Supported reports whether name resolves to a chain.
func (d *Directory) Supported(name string) bool {
	_, err := d.Lookup(name)
	return err == nil
}

// Canonical returns the registered name for name, or name unchanged if unknown.
func (d *Directory) Canonical(name string) string {
	c, err := d.Lookup(name)
	if err != nil {
		return name
	}
	return c.Name
}

// TransactionHash returns a random 32-byte hash in 0x-prefixed hex. Nothing is
// submitted to any network.
func (d *Directory) TransactionHash() (string, error) {
	var b [32]byte
	if _, err := io.ReadFull(d.rand, b[:]); err != nil {
		return "", fmt.Errorf("generate transaction hash: %w", err)
	}
	return "0x" + hex.EncodeToString(b[:]), nil
}

// ExplorerURL links to the transaction on the chain's block explorer, or ""
// when the chain is unknown or has no explorer.
func (d *Directory) ExplorerURL(chainName, txHash string) string {
	c, err := d.Lookup(chainName)
	if err != nil || c.ExplorerURL == "" || txHash == "" {
		return ""
	}
	return strings.TrimRight(c.ExplorerURL, "/") + "/tx/" + txHash
}
