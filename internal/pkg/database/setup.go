package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/mediabridge/app/models"
	"github.com/ManuelReschke/mediabridge/internal/pkg/config"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// SetupDatabase opens the MySQL connection, retrying while the server starts up, and
// migrates the media tables.
func SetupDatabase(cfg config.DatabaseConf, debug bool) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if debug {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var err error
	for i := 0; i < maxRetries; i++ {
		var db *gorm.DB
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       cfg.DSN(),
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), gormCfg)
		if err == nil {
			if err = db.AutoMigrate(&models.MediaItem{}, &models.MediaBlob{}); err != nil {
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
			log.Infof("[Database] Connected to %s:%d/%s", cfg.Host, cfg.Port, cfg.Name)
			return db, nil
		}

		log.Warnf("[Database] Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, err
}

// Close releases the pool behind db
func Close(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
