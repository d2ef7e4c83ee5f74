package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	logger "github.com/ipfs/go-log/v2"
	"github.com/storemarket/market-core/cmd/marketd/httpapi"
	marketengine "github.com/storemarket/market-core/cmd/marketd/market"
	"github.com/storemarket/market-core/escrow/escrowmem"
	"github.com/storemarket/market-core/finalizer"
	"github.com/storemarket/market-core/market"
	badger "github.com/textileio/go-ds-badger3"
)

var log = logger.Logger("marketd/service")

// Config defines params for Service setup.
type Config struct {
	HTTPListenAddr string
	RepoPath       string

	EscrowAccount   string
	TreasuryAccount string

	// Mints seeds the dev ledger, "account=amount" per entry. A real
	// deployment plugs a chain-backed escrow.Ledger in instead.
	Mints []string
}

// Service wires the deal engine to its datastore, ledger and http api.
type Service struct {
	engine    *marketengine.Market
	finalizer *finalizer.Finalizer
}

// New returns a new Service.
func New(conf Config) (*Service, error) {
	fin := finalizer.NewFinalizer()

	dstore, err := badgerStore(filepath.Join(conf.RepoPath, "store"), fin)
	if err != nil {
		return nil, fin.Cleanupf("creating repo: %v", err)
	}

	ledger := escrowmem.New()
	if err := seedLedger(ledger, conf.Mints); err != nil {
		return nil, fin.Cleanupf("seeding ledger: %v", err)
	}

	engine, err := marketengine.New(
		dstore,
		ledger,
		marketengine.WithEscrowAccount(market.Account(conf.EscrowAccount)),
		marketengine.WithTreasuryAccount(market.Account(conf.TreasuryAccount)),
	)
	if err != nil {
		return nil, fin.Cleanupf("creating engine: %v", err)
	}

	httpServer, err := httpapi.NewServer(conf.HTTPListenAddr, engine)
	if err != nil {
		return nil, fin.Cleanupf("creating http server: %v", err)
	}
	fin.Add(httpServer)

	return &Service{engine: engine, finalizer: fin}, nil
}

// Close the service gracefully.
func (s *Service) Close() error {
	defer log.Info("service was shutdown")
	return s.finalizer.Cleanup(nil)
}

func badgerStore(repoPath string, fin *finalizer.Finalizer) (*badger.Datastore, error) {
	if err := os.MkdirAll(repoPath, os.ModePerm); err != nil {
		return nil, err
	}
	dstore, err := badger.NewDatastore(repoPath, &badger.DefaultOptions)
	if err != nil {
		return nil, err
	}
	fin.Add(dstore)
	return dstore, nil
}

func seedLedger(ledger *escrowmem.Ledger, mints []string) error {
	for _, mint := range mints {
		if mint == "" {
			continue
		}
		parts := strings.SplitN(mint, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("malformed mint %q, want account=amount", mint)
		}
		amount, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing mint amount %q: %v", parts[1], err)
		}
		ledger.Mint(market.Account(parts[0]), amount)
		log.Infof("minted %d units for %s", amount, parts[0])
	}
	return nil
}
