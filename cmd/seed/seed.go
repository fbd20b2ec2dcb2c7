package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/nulzo/modelmart/internal/analytics"
	"github.com/nulzo/modelmart/internal/catalog"
	"github.com/nulzo/modelmart/internal/chain"
	"github.com/nulzo/modelmart/internal/registry"
	"github.com/nulzo/modelmart/internal/store/cache"
	"github.com/nulzo/modelmart/internal/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	dsn := flag.String("dsn", "modelmart.db", "SQLite data source name")
	count := flag.Int("count", 25, "Number of deployments to create")
	wallets := flag.Int("wallets", 5, "Number of distinct owner wallets")
	flag.Parse()

	logger := zap.NewNop()

	repo, err := sqlite.NewSQLiteStorage(*dsn, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer repo.Close()

	cat, err := catalog.Default()
	if err != nil {
		log.Fatal(err)
	}
	dir, err := chain.NewDirectory(chain.Defaults)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	ingestor := analytics.NewIngestor(logger, repo, analytics.DefaultIngestorOptions())
	ingestor.Start(ctx)

	reg := registry.NewService(logger, repo, dir, ingestor, cache.NewMemoryCache(), registry.Options{})

	owners := make([]string, max(1, *wallets))
	for i := range owners {
		owners[i] = walletAddress()
	}

	models := cat.List()
	chains := dir.List()

	for i := 0; i < *count; i++ {
		m := models[rand.IntN(len(models))]
		in := registry.CreateDeployment{
			ModelID: m.ID,
			UserID:  owners[rand.IntN(len(owners))],
			Chain:   chains[rand.IntN(len(chains))].Name,
			Price:   m.Price,
		}
		d, err := reg.Create(ctx, in)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Deployment %d: %s -> %s on %s\n", d.ID, d.ModelID, d.UserID, d.Chain)
	}

	// flush audit events before the database closes
	ingestor.Stop()

	fmt.Printf("\nSuccessfully seeded %d deployments into %s\n", *count, *dsn)
	fmt.Println("Owner wallets:")
	for _, o := range owners {
		fmt.Printf("  %s\n", o)
	}
}

// walletAddress derives a 20-byte hex address from a random UUID.
func walletAddress() string {
	sum := sha256.Sum256([]byte(uuid.NewString()))
	return "0x" + hex.EncodeToString(sum[:20])
}
