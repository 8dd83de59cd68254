package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"yqhp/perf-gate/internal/config"
	"yqhp/perf-gate/internal/gate"
	"yqhp/perf-gate/pkg/logger"
	"yqhp/perf-gate/pkg/types"
)

// GormStore 基于 GORM 的历史存储，支持 MySQL 与 PostgreSQL
type GormStore struct {
	db *gorm.DB
}

// Dialector 根据配置创建数据库方言
func Dialector(cfg *config.HistoryConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			cfg.Username,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.Database,
			cfg.Charset,
		)
		return mysql.Open(dsn), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host,
			cfg.Port,
			cfg.Username,
			cfg.Password,
			cfg.Database,
		)
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// Open 连接历史数据库并迁移表结构
func Open(ctx context.Context, cfg *config.HistoryConfig) (*GormStore, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("连接历史数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 设置连接池参数
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	s := NewGormStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// NewGormStore 使用已有连接创建存储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate 自动迁移表结构
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&VerdictRecord{}); err != nil {
		return fmt.Errorf("迁移历史表失败: %w", err)
	}
	return nil
}

func (s *GormStore) Save(ctx context.Context, v *types.GateVerdict) error {
	if err := s.db.WithContext(ctx).Create(FromVerdict(v)).Error; err != nil {
		return fmt.Errorf("保存判定记录失败: %w", err)
	}
	return nil
}

func (s *GormStore) LastPass(ctx context.Context, scenario string) (*gate.Baseline, error) {
	var rec VerdictRecord
	err := lastPassQuery(s.db.WithContext(ctx), scenario).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoBaseline
	}
	if err != nil {
		return nil, fmt.Errorf("查询基线失败: %w", err)
	}
	return rec.Baseline(), nil
}

func lastPassQuery(db *gorm.DB, scenario string) *gorm.DB {
	return db.Model(&VerdictRecord{}).
		Where("scenario = ? AND status IN ?", scenario, passing).
		Order("evaluated_at DESC")
}

// Close 关闭数据库连接
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
