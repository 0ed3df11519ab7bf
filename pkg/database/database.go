package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"acu-chatbot-go/internal/config"
	"acu-chatbot-go/internal/model"
	"acu-chatbot-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open 根据 driver 打开数据库连接（mysql 或 sqlite）。
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "", "sqlite":
		if dir := filepath.Dir(cfg.DSN); dir != "." && dir != "" {
			_ = os.MkdirAll(dir, os.ModePerm)
		}
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.Driver == "mysql" {
		sqlDB.SetMaxIdleConns(10)           // 设置空闲连接池中连接的最大数量
		sqlDB.SetMaxOpenConns(100)          // 设置打开数据库连接的最大数量
		sqlDB.SetConnMaxLifetime(time.Hour) // 设置了连接可复用的最大时间
	} else {
		// SQLite 只允许单写者
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate 自动迁移消息记录表。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.MessageRecord{})
}

// InitDB 初始化数据库连接并执行迁移
func InitDB(cfg config.DatabaseConfig) {
	db, err := Open(cfg)
	if err != nil {
		log.Fatal("failed to connect database", err)
	}
	if err := Migrate(db); err != nil {
		log.Fatal("failed to migrate database", err)
	}
	DB = db
	log.Infof("%s database connected successfully", driverName(cfg.Driver))
}

func driverName(d string) string {
	if d == "" {
		return "sqlite"
	}
	return d
}
