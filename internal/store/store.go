package store

import (
	"context"
	"errors"
	"fmt"

	"guard/pkg/models"
)

// MaxAccountSpace 单个槽位的最大容量
const MaxAccountSpace = 10 * 1024 * 1024

var (
	// ErrAccountNotFound 账户不存在
	ErrAccountNotFound = errors.New("账户不存在")
	// ErrAccountExists 账户已存在
	ErrAccountExists = errors.New("账户已存在")
	// ErrDataExceedsSpace 数据超出槽位容量
	ErrDataExceedsSpace = errors.New("数据超出槽位容量")
)

// Account 持久化的账户槽位
type Account struct {
	Key   models.Pubkey `json:"key"`
	Owner models.Pubkey `json:"owner"`
	Space uint32        `json:"space"`
	Data  []byte        `json:"data"`
}

// Clone 深拷贝
func (a *Account) Clone() *Account {
	c := *a
	if a.Data != nil {
		c.Data = append([]byte(nil), a.Data...)
	}
	return &c
}

// Validate 检查数据长度与槽位容量
func (a *Account) Validate() error {
	if a.Space > MaxAccountSpace {
		return fmt.Errorf("%w: 槽位容量 %d 超过上限 %d", ErrDataExceedsSpace, a.Space, MaxAccountSpace)
	}
	if len(a.Data) > int(a.Space) {
		return fmt.Errorf("%w: 账户 %s 数据 %d 字节, 容量 %d", ErrDataExceedsSpace, a.Key.Hex(), len(a.Data), a.Space)
	}
	return nil
}

// AccountStore 账户存储
type AccountStore interface {
	// Get 读取账户，不存在时返回 ErrAccountNotFound
	Get(ctx context.Context, key models.Pubkey) (*Account, error)
	// Create 创建新账户，已存在时返回 ErrAccountExists
	Create(ctx context.Context, account *Account) error
	// Commit 在一个事务内写入全部账户
	Commit(ctx context.Context, accounts []*Account) error
	// List 列出所有账户
	List(ctx context.Context) ([]*Account, error)
	Close() error
}
