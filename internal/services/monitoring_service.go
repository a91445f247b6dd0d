package services

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ContractLand/terra-bridge-contracts/internal/bridge"
	"github.com/ContractLand/terra-bridge-contracts/internal/chain"
	"github.com/ContractLand/terra-bridge-contracts/internal/db"
	"github.com/ContractLand/terra-bridge-contracts/internal/metrics"
	"github.com/ContractLand/terra-bridge-contracts/internal/token"
)

// MonitoringService 监控服务，负责定期更新 Prometheus metrics
type MonitoringService struct {
	db      *gorm.DB
	ledgers []*bridge.Ledger
	log     *logrus.Entry

	dbInterval      time.Duration
	balanceInterval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewMonitoringService database may be nil when the audit trail is disabled.
func NewMonitoringService(database *gorm.DB, ledgers []*bridge.Ledger, logger *logrus.Logger) *MonitoringService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MonitoringService{
		db:              database,
		ledgers:         ledgers,
		log:             logger.WithField("component", "monitor"),
		dbInterval:      10 * time.Second,
		balanceInterval: 60 * time.Second, // 默认60秒检查一次
		stopCh:          make(chan struct{}),
	}
}

// Start 启动监控服务
func (m *MonitoringService) Start() {
	m.log.Info("🚀 Starting monitoring service...")

	if m.db != nil {
		m.wg.Add(1)
		go m.loop(m.dbInterval, m.updateDatabaseMetrics)
	}
	m.wg.Add(1)
	go m.loop(m.balanceInterval, m.UpdateLedgerMetrics)
}

// Stop 停止监控服务
func (m *MonitoringService) Stop() {
	m.once.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
		m.log.Info("✅ Monitoring service stopped")
	})
}

func (m *MonitoringService) loop(every time.Duration, fn func(context.Context)) {
	defer m.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	// 立即执行一次
	m.run(fn)
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.run(fn)
		}
	}
}

func (m *MonitoringService) run(fn func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fn(ctx)
}

// updateDatabaseMetrics 更新数据库指标
func (m *MonitoringService) updateDatabaseMetrics(ctx context.Context) {
	if err := db.Ping(ctx, m.db); err != nil {
		m.log.WithError(err).Warn("audit database ping failed")
		return
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return
	}
	stats := sqlDB.Stats()
	metrics.DBConnectionActive.Set(float64(stats.InUse))
	metrics.DBConnectionIdle.Set(float64(stats.Idle))
}

// UpdateLedgerMetrics refreshes the validator and custody gauges of every ledger.
func (m *MonitoringService) UpdateLedgerMetrics(ctx context.Context) {
	for _, l := range m.ledgers {
		name := l.Chain().Name()

		st, err := l.Status(ctx)
		if err != nil {
			m.log.WithError(err).WithField("chain", name).Warn("failed to read ledger status")
			continue
		}
		metrics.ValidatorCount.WithLabelValues(name).Set(float64(len(st.Validators)))
		metrics.RequiredSignatures.WithLabelValues(name).Set(float64(st.RequiredSignatures))

		balances, err := LedgerBalances(ctx, l)
		if err != nil {
			m.log.WithError(err).WithField("chain", name).Warn("failed to read ledger balances")
			continue
		}
		for _, b := range balances {
			metrics.AssetBalance.WithLabelValues(name, b.Asset.Hex(), "held").Set(wholeUnits(b.Held, b.Decimals))
			if b.Locked != nil {
				metrics.AssetBalance.WithLabelValues(name, b.Asset.Hex(), "locked").Set(wholeUnits(b.Locked, b.Decimals))
			}
			if b.Supply != nil {
				metrics.AssetBalance.WithLabelValues(name, b.Asset.Hex(), "supply").Set(wholeUnits(b.Supply, b.Decimals))
			}
		}
	}
}

// AssetBalance what a ledger holds of one local asset. Locked and Supply are
// nil for the native coin.
type AssetBalance struct {
	Asset    common.Address
	Decimals uint8
	Held     *big.Int
	Locked   *big.Int
	Supply   *big.Int
}

// LedgerBalances reads the ledger's own balance of the native coin and of
// every registered local token.
func LedgerBalances(ctx context.Context, l *bridge.Ledger) ([]AssetBalance, error) {
	pairs, err := l.Assets(ctx)
	if err != nil {
		return nil, err
	}
	var out []AssetBalance
	err = l.Chain().View(ctx, func(c *chain.Context) error {
		held, err := c.Balance(l.Address())
		if err != nil {
			return err
		}
		out = append(out, AssetBalance{Asset: bridge.NativeAsset, Decimals: l.NativeDecimals(), Held: held})

		for _, p := range pairs {
			local := p.Local(l.Side())
			if local == bridge.NativeAsset {
				continue
			}
			t, err := token.Load(c, local)
			if err != nil {
				return err
			}
			held, err := t.BalanceOf(c, l.Address())
			if err != nil {
				return err
			}
			locked, err := l.LockedIn(c, t)
			if err != nil {
				return err
			}
			supply, err := t.TotalSupply(c)
			if err != nil {
				return err
			}
			out = append(out, AssetBalance{Asset: local, Decimals: t.Decimals(), Held: held, Locked: locked, Supply: supply})
		}
		return nil
	})
	return out, err
}

func wholeUnits(v *big.Int, decimals uint8) float64 {
	f := new(big.Float).SetInt(v)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := f.Quo(f, scale).Float64()
	return out
}
