package database

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/trailguard/types"
)

type Database struct {
	db *gorm.DB
}

// Models

// TradeLog is one append-only trade history row
type TradeLog struct {
	ID        string          `gorm:"primaryKey"`
	Timestamp time.Time       `gorm:"index"`
	Action    string          `gorm:"index"` // long_entry, short_exit, ...
	OrderType string          // market, limit
	Symbol    string          `gorm:"index"`
	Price     decimal.Decimal `gorm:"type:decimal(20,8)"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,8)"`
	Fees      string          // "N/A" when the exchange reported none
	Status    string          // placed, expired, error: <cause>
	CreatedAt time.Time
}

func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	// Check if this is a PostgreSQL connection string
	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		// SQLite fallback
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&TradeLog{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// Close releases the underlying connection pool
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Trade log operations

// LogTrade implements types.TradeLogger
func (d *Database) LogTrade(entry types.TradeLogEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	row := &TradeLog{
		ID:        uuid.NewString(),
		Timestamp: ts,
		Action:    entry.Action,
		OrderType: string(entry.OrderType),
		Symbol:    entry.Symbol,
		Price:     entry.Price,
		Amount:    entry.Amount,
		Fees:      entry.Fees,
		Status:    entry.Status,
	}
	return d.db.Create(row).Error
}

// RecentTrades returns the newest rows first
func (d *Database) RecentTrades(limit int) ([]types.TradeLogEntry, error) {
	var rows []TradeLog
	if err := d.db.Order("timestamp DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]types.TradeLogEntry, len(rows))
	for i, r := range rows {
		out[i] = types.TradeLogEntry{
			Timestamp: r.Timestamp,
			Action:    r.Action,
			OrderType: types.OrderType(r.OrderType),
			Symbol:    r.Symbol,
			Price:     r.Price,
			Amount:    r.Amount,
			Fees:      r.Fees,
			Status:    r.Status,
		}
	}
	return out, nil
}

// Stats operations

// GetStats counts rows by outcome
func (d *Database) GetStats() (map[string]int64, error) {
	stats := make(map[string]int64)

	var total int64
	if err := d.db.Model(&TradeLog{}).Count(&total).Error; err != nil {
		return nil, err
	}
	stats["total"] = total

	var placed int64
	d.db.Model(&TradeLog{}).Where("status = ?", "placed").Count(&placed)
	stats["placed"] = placed

	var expired int64
	d.db.Model(&TradeLog{}).Where("status = ?", "expired").Count(&expired)
	stats["expired"] = expired

	var failed int64
	d.db.Model(&TradeLog{}).Where("status LIKE ?", "error:%").Count(&failed)
	stats["failed"] = failed

	return stats, nil
}
