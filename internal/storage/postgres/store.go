package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/storage"
)

// Options 连接池与迁移选项
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// DefaultOptions 默认连接池配置
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// Store 基于 GORM 的 SQL 存储实现（PostgreSQL / MySQL / SQLite）
type Store struct {
	db *gorm.DB
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建 PostgreSQL 存储实例
func NewStore(dsn string, opts Options) (*Store, error) {
	return NewStoreWithDialector(postgres.Open(dsn), opts)
}

// NewMySQLStore 创建 MySQL 存储实例
func NewMySQLStore(dsn string, opts Options) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(dsn), opts)
}

// NewSQLiteStore 创建 SQLite 存储实例（纯 Go 驱动，单写连接）
func NewSQLiteStore(file string, opts Options) (*Store, error) {
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1
	return NewStoreWithDialector(gormsqlite.Dialector{DriverName: "sqlite", DSN: file}, opts)
}

// NewStoreWithDialector 使用指定的GORM dialector创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, opts Options) (*Store, error) {
	config := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	store := &Store{db: db}
	if opts.AutoMigrate {
		if err := store.migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return store, nil
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.DomainRecord{},
		&domain.AccessRequest{},
		&domain.Mailbox{},
		&domain.Message{},
		&domain.FileAsset{},
		&domain.ShortLink{},
		&domain.ForwardingRule{},
		&domain.Feedback{},
	)
}

// translate 把 GORM 错误转换为存储层错误
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return storage.ErrDuplicate
	default:
		return err
	}
}

// isUniqueViolation 纯 Go SQLite 驱动的错误不会被 GORM 翻译
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ========== DNS 记录 ==========

// CreateDomainRecord 新建记录，依赖唯一索引保证 (domain, record_type) 唯一
func (s *Store) CreateDomainRecord(ctx context.Context, record *domain.DomainRecord) error {
	return translate(s.db.WithContext(ctx).Create(record).Error)
}

// UpdateDomainRecord 覆盖记录值
func (s *Store) UpdateDomainRecord(ctx context.Context, record *domain.DomainRecord) error {
	result := s.db.WithContext(ctx).Model(&domain.DomainRecord{}).
		Where("domain = ? AND record_type = ?", record.Domain, record.RecordType).
		Select("Values", "UpdatedAt").
		Updates(&domain.DomainRecord{Values: record.Values, UpdatedAt: time.Now().UTC()})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetDomainRecord 按名称和类型查询记录
func (s *Store) GetDomainRecord(ctx context.Context, name string, recordType domain.RecordType) (*domain.DomainRecord, error) {
	var record domain.DomainRecord
	err := s.db.WithContext(ctx).Where("domain = ? AND record_type = ?", name, recordType).First(&record).Error
	if err != nil {
		return nil, translate(err)
	}
	return &record, nil
}

// ListDomainRecordsByName 返回该名称下的全部记录
func (s *Store) ListDomainRecordsByName(ctx context.Context, name string) ([]*domain.DomainRecord, error) {
	var records []*domain.DomainRecord
	err := s.db.WithContext(ctx).Where("domain = ?", name).Order("created_at ASC").Find(&records).Error
	return records, translate(err)
}

// ListDomainRecordsByUser 返回租户的全部记录
func (s *Store) ListDomainRecordsByUser(ctx context.Context, userID string) ([]*domain.DomainRecord, error) {
	var records []*domain.DomainRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&records).Error
	return records, translate(err)
}

// DeleteDomainRecords 删除租户在该名称下的记录
func (s *Store) DeleteDomainRecords(ctx context.Context, userID, name string, recordType domain.RecordType) (int64, error) {
	query := s.db.WithContext(ctx).Where("user_id = ? AND domain = ?", userID, name)
	if recordType != "" {
		query = query.Where("record_type = ?", recordType)
	}
	result := query.Delete(&domain.DomainRecord{})
	return result.RowsAffected, translate(result.Error)
}

// ========== 访问申请 ==========

// GetAccessRequest 按 ID 查询申请
func (s *Store) GetAccessRequest(ctx context.Context, id string) (*domain.AccessRequest, error) {
	var req domain.AccessRequest
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

// GetAccessRequestByUser 按租户查询申请
func (s *Store) GetAccessRequestByUser(ctx context.Context, userID string) (*domain.AccessRequest, error) {
	var req domain.AccessRequest
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&req).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

// SaveAccessRequest 新建或覆盖申请
func (s *Store) SaveAccessRequest(ctx context.Context, request *domain.AccessRequest) error {
	return translate(s.db.WithContext(ctx).Save(request).Error)
}

// DecideAccessRequest 条件更新：WHERE status = 'pending'
func (s *Store) DecideAccessRequest(ctx context.Context, id string, status domain.AccessStatus, decidedBy string, at time.Time) (*domain.AccessRequest, error) {
	result := s.db.WithContext(ctx).Model(&domain.AccessRequest{}).
		Where("id = ? AND status = ?", id, domain.AccessPending).
		Updates(map[string]any{
			"status":     status,
			"decided_at": at,
			"decided_by": decidedBy,
		})
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	req, err := s.GetAccessRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, storage.ErrNotPending
	}
	return req, nil
}

// PurgeDeniedAccessRequests 删除过期的已拒绝申请
func (s *Store) PurgeDeniedAccessRequests(ctx context.Context, decidedBefore time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status = ? AND decided_at < ?", domain.AccessDenied, decidedBefore).
		Delete(&domain.AccessRequest{})
	return result.RowsAffected, translate(result.Error)
}

// ========== 工具方法 ==========

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 健康检查
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
