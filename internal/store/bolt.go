package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"guard/internal/retry"
	"guard/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// DefaultDBPath 默认数据库路径
	DefaultDBPath = "./data/guard.db"
	// AccountsBucket 账户存储桶
	AccountsBucket = "accounts"

	// 值布局: 归属程序(32) 容量(4) 数据
	accountHeaderSize = models.PubkeyLength + 4
)

// BoltStore 基于BoltDB的账户存储
type BoltStore struct {
	db     *bolt.DB
	logger *logrus.Logger
	dbPath string
}

// OpenBoltStore 打开账户数据库，文件锁被占用时按重试策略等待
func OpenBoltStore(ctx context.Context, dbPath string, timeout time.Duration, logger *logrus.Logger) (*BoltStore, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	if timeout <= 0 {
		timeout = time.Second
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	retrier := retry.NewRetrier(retry.StoreRetryConfig, logger)
	db, err := retry.Do(ctx, retrier, "打开账户数据库", func() (*bolt.DB, error) {
		return bolt.Open(dbPath, 0600, &bolt.Options{Timeout: timeout})
	})
	if err != nil {
		return nil, fmt.Errorf("打开账户数据库失败: %w", err)
	}

	s := &BoltStore{db: db, logger: logger, dbPath: dbPath}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	logger.Infof("账户存储已初始化，数据库路径: %s", dbPath)
	return s, nil
}

// initDB 初始化数据库结构
func (s *BoltStore) initDB() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(AccountsBucket)); err != nil {
			return fmt.Errorf("创建账户存储桶失败: %w", err)
		}
		return nil
	})
}

// Get 读取账户
func (s *BoltStore) Get(ctx context.Context, key models.Pubkey) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var account *Account
	err := s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket([]byte(AccountsBucket)).Get(key.Bytes())
		if value == nil {
			return ErrAccountNotFound
		}
		decoded, err := decodeAccount(key, value)
		if err != nil {
			return err
		}
		account = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Create 创建新账户
func (s *BoltStore) Create(ctx context.Context, account *Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := account.Validate(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(AccountsBucket))
		if bucket.Get(account.Key.Bytes()) != nil {
			return fmt.Errorf("%w: %s", ErrAccountExists, account.Key.Hex())
		}
		return bucket.Put(account.Key.Bytes(), encodeAccount(account))
	})
}

// Commit 在一个事务内写入全部账户，任一失败则全部回滚
func (s *BoltStore) Commit(ctx context.Context, accounts []*Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, account := range accounts {
		if err := account.Validate(); err != nil {
			return err
		}
	}

	start := time.Now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(AccountsBucket))
		for _, account := range accounts {
			if err := bucket.Put(account.Key.Bytes(), encodeAccount(account)); err != nil {
				return fmt.Errorf("写入账户 %s 失败: %w", account.Key.Hex(), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debugf("已提交 %d 个账户，耗时 %v", len(accounts), time.Since(start))
	return nil
}

// List 列出所有账户
func (s *BoltStore) List(ctx context.Context) ([]*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	accounts := make([]*Account, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(AccountsBucket)).ForEach(func(k, v []byte) error {
			account, err := decodeAccount(common.BytesToHash(k), v)
			if err != nil {
				return err
			}
			accounts = append(accounts, account)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// GetDBPath 获取数据库路径
func (s *BoltStore) GetDBPath() string {
	return s.dbPath
}

// Close 关闭数据库
func (s *BoltStore) Close() error {
	if s.db != nil {
		s.logger.Info("关闭账户数据库")
		return s.db.Close()
	}
	return nil
}

func encodeAccount(account *Account) []byte {
	value := make([]byte, accountHeaderSize, accountHeaderSize+len(account.Data))
	copy(value, account.Owner.Bytes())
	binary.BigEndian.PutUint32(value[models.PubkeyLength:], account.Space)
	return append(value, account.Data...)
}

// decodeAccount 解析存储值，返回的数据不引用bolt内存
func decodeAccount(key models.Pubkey, value []byte) (*Account, error) {
	if len(value) < accountHeaderSize {
		return nil, fmt.Errorf("账户 %s 存储值长度异常: %d", key.Hex(), len(value))
	}

	account := &Account{
		Key:   key,
		Owner: common.BytesToHash(value[:models.PubkeyLength]),
		Space: binary.BigEndian.Uint32(value[models.PubkeyLength:accountHeaderSize]),
	}
	if data := value[accountHeaderSize:]; len(data) > 0 {
		account.Data = append([]byte(nil), data...)
	}
	return account, nil
}
