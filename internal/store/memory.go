package store

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"guard/pkg/models"
)

// MemoryStore 内存账户存储，用于测试和临时运行
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[models.Pubkey]*Account
}

// NewMemoryStore 创建内存账户存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[models.Pubkey]*Account)}
}

// Get 读取账户
func (s *MemoryStore) Get(ctx context.Context, key models.Pubkey) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[key]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return account.Clone(), nil
}

// Create 创建新账户
func (s *MemoryStore) Create(ctx context.Context, account *Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.Key]; ok {
		return fmt.Errorf("%w: %s", ErrAccountExists, account.Key.Hex())
	}
	s.accounts[account.Key] = account.Clone()
	return nil
}

// Commit 写入全部账户
func (s *MemoryStore) Commit(ctx context.Context, accounts []*Account) error {
	for _, account := range accounts {
		if err := account.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range accounts {
		s.accounts[account.Key] = account.Clone()
	}
	return nil
}

// List 按键排序列出所有账户
func (s *MemoryStore) List(ctx context.Context) ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]*Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		accounts = append(accounts, account.Clone())
	}
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i].Key.Bytes(), accounts[j].Key.Bytes()) < 0
	})
	return accounts, nil
}

// Close 无需释放资源
func (s *MemoryStore) Close() error {
	return nil
}
