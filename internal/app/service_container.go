package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ContractLand/terra-bridge-contracts/internal/bridge"
	"github.com/ContractLand/terra-bridge-contracts/internal/chain"
	"github.com/ContractLand/terra-bridge-contracts/internal/config"
	"github.com/ContractLand/terra-bridge-contracts/internal/db"
	"github.com/ContractLand/terra-bridge-contracts/internal/events"
	"github.com/ContractLand/terra-bridge-contracts/internal/handlers"
	"github.com/ContractLand/terra-bridge-contracts/internal/metrics"
	"github.com/ContractLand/terra-bridge-contracts/internal/repository"
	"github.com/ContractLand/terra-bridge-contracts/internal/router"
	"github.com/ContractLand/terra-bridge-contracts/internal/services"
	"github.com/ContractLand/terra-bridge-contracts/internal/store"
	"github.com/ContractLand/terra-bridge-contracts/internal/token"
)

// ServiceContainer owns every long-lived component of a bridge node.
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger
	Owner  common.Address

	// Chains
	HomeStore    *store.Store
	ForeignStore *store.Store
	HomeChain    *chain.Chain
	ForeignChain *chain.Chain

	// Bridge
	Recoverer *bridge.Recoverer
	Home      *bridge.Ledger
	Foreign   *bridge.Ledger

	// Event delivery
	Hub  *events.Hub
	NATS *events.NATSPublisher

	// Audit trail, nil without a database
	DB            *gorm.DB
	EventRepo     repository.BridgeEventRepository
	TransferRepo  repository.TransferRepository
	SignatureRepo repository.SignatureRepository
	Audit         *services.AuditService

	Monitor *services.MonitoringService
}

// NewLogger builds the node logger from the log section.
func NewLogger(cfg config.LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}
	return logger, nil
}

// NewServiceContainer opens state, builds both ledgers and connects the
// optional NATS publisher and audit database. Nothing is written to chain
// state until Bootstrap.
func NewServiceContainer(cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	if logger == nil {
		var err error
		if logger, err = NewLogger(cfg.Log); err != nil {
			return nil, err
		}
	}
	owner, err := config.ParseAddress(cfg.Bridge.Owner, false)
	if err != nil {
		return nil, fmt.Errorf("bridge.owner: %w", err)
	}

	c := &ServiceContainer{Config: cfg, Logger: logger, Owner: owner}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	logger.Info("🚀 Initializing Service Container...")

	// 1. State and chains
	if c.HomeStore, err = openStore(cfg.Storage.HomePath); err != nil {
		return nil, fmt.Errorf("home state: %w", err)
	}
	if c.ForeignStore, err = openStore(cfg.Storage.ForeignPath); err != nil {
		return nil, fmt.Errorf("foreign state: %w", err)
	}
	opts := chain.Options{
		Logger:     logger,
		ErrorLabel: func(err error) string { return bridge.KindOf(err).String() },
	}
	c.HomeChain = chain.New(cfg.Bridge.Home.Name, cfg.Bridge.Home.ChainID, c.HomeStore, opts)
	c.ForeignChain = chain.New(cfg.Bridge.Foreign.Name, cfg.Bridge.Foreign.ChainID, c.ForeignStore, opts)

	// 2. Ledgers
	if c.Recoverer, err = bridge.NewRecoverer(cfg.Bridge.SignatureCacheSize); err != nil {
		return nil, err
	}
	if c.Home, err = c.newLedger(bridge.Home, c.HomeChain, cfg.Bridge.Home); err != nil {
		return nil, fmt.Errorf("home ledger: %w", err)
	}
	if c.Foreign, err = c.newLedger(bridge.Foreign, c.ForeignChain, cfg.Bridge.Foreign); err != nil {
		return nil, fmt.Errorf("foreign ledger: %w", err)
	}

	// 3. Event delivery
	c.Hub = events.NewHub(func(n int) { metrics.WebSocketConnections.Set(float64(n)) })
	if err := c.initNATS(); err != nil {
		return nil, err
	}
	if err := c.initAudit(); err != nil {
		return nil, err
	}

	sinks := []events.Sink{metrics.Observer(), c.Hub}
	if c.NATS != nil {
		sinks = append(sinks, c.NATS)
	}
	if c.Audit != nil {
		sinks = append(sinks, c.Audit)
	}
	sink := events.Multi(sinks...)
	c.HomeChain.SetSink(sink)
	c.ForeignChain.SetSink(sink)

	c.Monitor = services.NewMonitoringService(c.DB, []*bridge.Ledger{c.Home, c.Foreign}, logger)

	ok = true
	logger.Info("✅ Service Container initialized successfully")
	return c, nil
}

func openStore(path string) (*store.Store, error) {
	if path == "" {
		return store.OpenMemory()
	}
	return store.Open(path, true)
}

func (c *ServiceContainer) newLedger(side bridge.Side, ch *chain.Chain, cc config.ChainConfig) (*bridge.Ledger, error) {
	addr, err := config.ParseAddress(cc.BridgeAddress, false)
	if err != nil {
		return nil, fmt.Errorf("bridgeAddress: %w", err)
	}
	registryAddr := crypto.CreateAddress(addr, 1)
	if cc.ValidatorsAddress != "" {
		if registryAddr, err = config.ParseAddress(cc.ValidatorsAddress, false); err != nil {
			return nil, fmt.Errorf("validatorsAddress: %w", err)
		}
	}

	registry := bridge.NewValidatorRegistry(ch, registryAddr, c.Logger)
	lc := bridge.LedgerConfig{
		Address:        addr,
		NativeDecimals: cc.NativeDecimals,
		Recoverer:      c.Recoverer,
		Logger:         c.Logger,
	}
	if side == bridge.Home {
		return bridge.NewHomeLedger(registry, lc)
	}
	return bridge.NewForeignLedger(registry, lc)
}

func (c *ServiceContainer) initNATS() error {
	n := c.Config.NATS
	if n.URL == "" {
		c.Logger.Info("NATS not configured, events stay local")
		return nil
	}
	publisher, err := events.NewNATSPublisher(events.NATSOptions{
		URL:           n.URL,
		Timeout:       time.Duration(n.Timeout) * time.Second,
		ReconnectWait: time.Duration(n.ReconnectWait) * time.Second,
		MaxReconnects: n.MaxReconnects,
		JetStream:     n.EnableJetStream,
		Stream:        n.Stream,
		MaxAge:        time.Duration(n.MaxAgeHours) * time.Hour,
		OnDisconnect:  func(error) { metrics.NATSConnectionStatus.Set(0) },
		OnReconnect:   func() { metrics.NATSConnectionStatus.Set(1) },
	})
	if err != nil {
		metrics.NATSConnectionStatus.Set(0)
		return fmt.Errorf("failed to connect NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)
	c.NATS = publisher
	return nil
}

func (c *ServiceContainer) initAudit() error {
	if c.Config.Database.DSN == "" {
		c.Logger.Info("audit database not configured, audit trail disabled")
		return nil
	}
	database, err := db.Open(c.Config.Database)
	if err != nil {
		return err
	}
	c.DB = database
	c.EventRepo = repository.NewBridgeEventRepository(database)
	c.TransferRepo = repository.NewTransferRepository(database)
	c.SignatureRepo = repository.NewSignatureRepository(database)
	c.Audit = services.NewAuditService(c.EventRepo, c.TransferRepo, c.SignatureRepo, c.Logger, 0)
	return nil
}

// Bootstrap installs the configured validator set, tokens, balances, ledger
// parameters and asset registrations on both chains. Steps that already
// happened on an earlier run are skipped, so it is safe on every start.
func (c *ServiceContainer) Bootstrap(ctx context.Context) error {
	validators := make([]common.Address, 0, len(c.Config.Bridge.Validators))
	for i, v := range c.Config.Bridge.Validators {
		addr, err := config.ParseAddress(v, false)
		if err != nil {
			return fmt.Errorf("bridge.validators[%d]: %w", i, err)
		}
		validators = append(validators, addr)
	}
	threshold := c.Config.Bridge.RequiredSignatures

	if err := c.bootstrapSide(ctx, c.Home, c.Config.Bridge.Home, validators, threshold); err != nil {
		return fmt.Errorf("bootstrap %s: %w", c.Config.Bridge.Home.Name, err)
	}
	if err := c.bootstrapSide(ctx, c.Foreign, c.Config.Bridge.Foreign, validators, threshold); err != nil {
		return fmt.Errorf("bootstrap %s: %w", c.Config.Bridge.Foreign.Name, err)
	}
	return nil
}

func (c *ServiceContainer) bootstrapSide(ctx context.Context, l *bridge.Ledger, cc config.ChainConfig, validators []common.Address, threshold uint64) error {
	log := c.Logger.WithField("chain", cc.Name)

	err := l.Registry().Initialize(ctx, threshold, validators, c.Owner)
	switch {
	case errors.Is(err, bridge.ErrAlreadyInitialized):
		log.Debug("validator registry already initialized")
	case err != nil:
		return fmt.Errorf("validator registry: %w", err)
	}

	if err := applyGenesis(ctx, l, cc); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}

	daily, maxPerTx, minPerTx, err := cc.Limits.Values()
	if err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	gasPrice, err := config.ParseAmount(cc.GasPrice)
	if err != nil {
		return fmt.Errorf("gasPrice: %w", err)
	}
	err = l.Initialize(ctx, c.Owner, bridge.InitParams{
		Limits:                     bridge.Limits{DailyLimit: daily, MaxPerTx: maxPerTx, MinPerTx: minPerTx},
		GasPrice:                   gasPrice,
		RequiredBlockConfirmations: cc.RequiredBlockConfirmations,
	})
	switch {
	case errors.Is(err, bridge.ErrAlreadyInitialized):
		log.Debug("ledger already initialized")
	case err != nil:
		return fmt.Errorf("ledger: %w", err)
	}

	for i, a := range cc.Assets {
		foreign, err := config.ParseAddress(a.Foreign, true)
		if err != nil {
			return fmt.Errorf("assets[%d].foreign: %w", i, err)
		}
		home, err := config.ParseAddress(a.Home, true)
		if err != nil {
			return fmt.Errorf("assets[%d].home: %w", i, err)
		}
		var limits *bridge.Limits
		if a.Limits != nil {
			daily, maxPerTx, minPerTx, err := a.Limits.Values()
			if err != nil {
				return fmt.Errorf("assets[%d].limits: %w", i, err)
			}
			limits = &bridge.Limits{DailyLimit: daily, MaxPerTx: maxPerTx, MinPerTx: minPerTx}
		}
		_, err = l.RegisterAsset(ctx, c.Owner, foreign, home, limits)
		switch {
		case errors.Is(err, bridge.ErrAssetAlreadyRegistered):
			log.WithField("foreign", foreign.Hex()).Debug("asset already registered")
		case err != nil:
			return fmt.Errorf("assets[%d]: %w", i, err)
		}
	}
	return nil
}

const keyGenesisApplied = "node/genesis"

// applyGenesis deploys the configured tokens, mints their allocations and
// credits native balances, all in one operation that runs at most once.
func applyGenesis(ctx context.Context, l *bridge.Ledger, cc config.ChainConfig) error {
	return l.Chain().Execute(ctx, "node.genesis", func(c *chain.Context) error {
		tx := c.Tx()
		done, err := tx.GetBool(keyGenesisApplied)
		if err != nil || done {
			return err
		}

		for i, t := range cc.Tokens {
			addr, err := config.ParseAddress(t.Address, false)
			if err != nil {
				return fmt.Errorf("tokens[%d].address: %w", i, err)
			}
			owner := l.Address()
			if t.Owner != "" {
				if owner, err = config.ParseAddress(t.Owner, false); err != nil {
					return fmt.Errorf("tokens[%d].owner: %w", i, err)
				}
			}
			tok, err := token.Deploy(c, addr, owner, token.Metadata{Name: t.Name, Symbol: t.Symbol, Decimals: t.Decimals})
			if err != nil {
				return fmt.Errorf("tokens[%d]: %w", i, err)
			}
			for j, m := range t.Mint {
				to, err := config.ParseAddress(m.Address, false)
				if err != nil {
					return fmt.Errorf("tokens[%d].mint[%d].address: %w", i, j, err)
				}
				amount, err := config.ParseAmount(m.Amount)
				if err != nil {
					return fmt.Errorf("tokens[%d].mint[%d].amount: %w", i, j, err)
				}
				if err := tok.Mint(c, owner, to, amount); err != nil {
					return fmt.Errorf("tokens[%d].mint[%d]: %w", i, j, err)
				}
			}
		}

		for i, g := range cc.Genesis {
			to, err := config.ParseAddress(g.Address, false)
			if err != nil {
				return fmt.Errorf("genesis[%d].address: %w", i, err)
			}
			amount, err := config.ParseAmount(g.Amount)
			if err != nil {
				return fmt.Errorf("genesis[%d].amount: %w", i, err)
			}
			if err := c.Credit(to, amount); err != nil {
				return fmt.Errorf("genesis[%d]: %w", i, err)
			}
		}

		tx.PutBool(keyGenesisApplied, true)
		return nil
	})
}

// Start launches the background writers. Bootstrap should run first so the
// audit trail sees a consistent history.
func (c *ServiceContainer) Start() {
	if c.Audit != nil {
		c.Audit.Start()
	}
	if c.Monitor != nil {
		c.Monitor.Start()
	}
}

// Handlers builds the HTTP surface. Admin calls act as the configured owner.
func (c *ServiceContainer) Handlers() router.Handlers {
	bridgeHandler := handlers.NewBridgeHandler(c.Home, c.Foreign, c.Recoverer, c.Logger)
	h := router.Handlers{
		Bridge:    bridgeHandler,
		Admin:     handlers.NewAdminBridgeHandler(bridgeHandler, c.Owner, c.Logger),
		AdminAuth: handlers.NewAdminAuthHandler(c.Config.Admin),
		WebSocket: handlers.NewWebSocketHandler(c.Hub),
		Health:    c.health,
	}
	if c.DB != nil {
		h.Audit = handlers.NewAuditHandler(c.EventRepo, c.TransferRepo, c.SignatureRepo)
	}
	return h
}

// Router is SetupRouter over Handlers.
func (c *ServiceContainer) Router() *gin.Engine {
	return router.SetupRouter(c.Config, c.Handlers(), c.Logger)
}

func (c *ServiceContainer) health() gin.H {
	out := gin.H{
		"chains":     []string{c.HomeChain.Name(), c.ForeignChain.Name()},
		"websockets": c.Hub.Count(),
	}
	switch {
	case c.DB == nil:
		out["database"] = "disabled"
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx, c.DB); err != nil {
			out["database"] = "unreachable"
		} else {
			out["database"] = "ok"
		}
	}
	switch {
	case c.NATS == nil:
		out["nats"] = "disabled"
	case c.NATS.Connected():
		out["nats"] = "ok"
	default:
		out["nats"] = "disconnected"
	}
	return out
}

// Close stops background work and releases every resource. The audit queue
// is drained before the database closes.
func (c *ServiceContainer) Close() error {
	var errs []error
	if c.Monitor != nil {
		c.Monitor.Stop()
	}
	if c.Audit != nil {
		c.Audit.Stop()
	}
	if c.Hub != nil {
		c.Hub.Close()
	}
	if c.NATS != nil {
		c.NATS.Close()
	}
	if c.DB != nil {
		errs = append(errs, db.Close(c.DB))
	}
	if c.HomeStore != nil {
		errs = append(errs, c.HomeStore.Close())
	}
	if c.ForeignStore != nil {
		errs = append(errs, c.ForeignStore.Close())
	}
	return errors.Join(errs...)
}
