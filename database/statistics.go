package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"

	"cellar/models"
)

// SyncStatistics summarises what the store currently holds
type SyncStatistics struct {
	HasBlocks      bool      `json:"has_blocks"`
	TipHeight      uint64    `json:"tip_height"`
	BlockCount     int64     `json:"block_count"`
	UncleCount     int64     `json:"uncle_count"`
	TxCount        int64     `json:"tx_count"`
	CellCount      int64     `json:"cell_count"`
	LiveCellCount  int64     `json:"live_cell_count"`
	ScriptCount    int64     `json:"script_count"`
	TipTimestamp   time.Time `json:"tip_timestamp"`
	CollectionTime time.Time `json:"collected_at"`
}

// GetTipHeight returns the highest stored block number
func GetTipHeight(ctx context.Context, db *gorm.DB) (uint64, bool, error) {
	var tip sql.NullInt64
	err := db.WithContext(ctx).Model(&models.BlockHeader{}).Select("MAX(number)").Row().Scan(&tip)
	if err != nil {
		return 0, false, fmt.Errorf("failed to query tip height: %w", err)
	}
	if !tip.Valid {
		return 0, false, nil
	}
	return uint64(tip.Int64), true, nil
}

// GetSyncStatistics returns row counts and the tip of the stored chain
func GetSyncStatistics(ctx context.Context, db *gorm.DB) (*SyncStatistics, error) {
	stats := &SyncStatistics{CollectionTime: time.Now()}
	db = db.WithContext(ctx)

	tip, ok, err := GetTipHeight(ctx, db)
	if err != nil {
		return nil, err
	}
	stats.HasBlocks = ok
	stats.TipHeight = tip

	counts := []struct {
		model interface{}
		query string
		dest  *int64
		what  string
	}{
		{&models.BlockHeader{}, "", &stats.BlockCount, "blocks"},
		{&models.UncleHeader{}, "", &stats.UncleCount, "uncles"},
		{&models.Transaction{}, "", &stats.TxCount, "transactions"},
		{&models.Cell{}, "", &stats.CellCount, "cells"},
		{&models.Cell{}, "consumed_tx_hash IS NULL", &stats.LiveCellCount, "live cells"},
		{&models.Script{}, "", &stats.ScriptCount, "scripts"},
	}
	for _, c := range counts {
		q := db.Model(c.model)
		if c.query != "" {
			q = q.Where(c.query)
		}
		if err := q.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.what, err)
		}
	}

	if ok {
		var header models.BlockHeader
		if err := db.Select("timestamp").Where("number = ?", int64(tip)).First(&header).Error; err == nil {
			stats.TipTimestamp = time.UnixMilli(header.Timestamp).UTC()
		}
	}

	return stats, nil
}
