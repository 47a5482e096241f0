package runtime

import (
	"context"
	"errors"
	"fmt"

	guarderrors "guard/internal/errors"
	"guard/internal/store"
	"guard/pkg/models"
)

// Account 读取账户
func (r *Runtime) Account(ctx context.Context, key models.Pubkey) (*store.Account, error) {
	return r.accounts.Get(ctx, key)
}

// Accounts 列出所有账户
func (r *Runtime) Accounts(ctx context.Context) ([]*store.Account, error) {
	return r.accounts.List(ctx)
}

// CreateAccount 创建空槽位
func (r *Runtime) CreateAccount(ctx context.Context, key, owner models.Pubkey, space uint32) (*store.Account, error) {
	account := &store.Account{Key: key, Owner: owner, Space: space}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// PutAccount 写入或覆盖外部账户，用于上传目标程序二进制。
// 程序拥有的账户只能由指令修改
func (r *Runtime) PutAccount(ctx context.Context, account *store.Account) error {
	programID := r.ProgramID()
	if account.Owner == programID {
		return programOwned(account.Key)
	}
	if account.Space == 0 {
		account.Space = uint32(len(account.Data))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.accounts.Get(ctx, account.Key)
	switch {
	case err == nil:
		if existing.Owner == programID {
			return programOwned(account.Key)
		}
	case !errors.Is(err, store.ErrAccountNotFound):
		return err
	}
	return r.accounts.Commit(ctx, []*store.Account{account})
}

func programOwned(key models.Pubkey) error {
	return guarderrors.ErrUnauthorizedAccount.
		WithContext("account", key.Hex()).
		WithContext("reason", "程序账户只能由指令修改").
		WithComponent("runtime")
}

// InitializeAccounts 创建全局指标和网络状态槽位，已存在的跳过
func (r *Runtime) InitializeAccounts(ctx context.Context) ([]models.Pubkey, error) {
	programID := r.ProgramID()
	slots := []struct {
		key   models.Pubkey
		space uint32
	}{
		{models.MetricsAddress(programID), models.MetricsSpace},
		{models.NetworkStateAddress(programID), models.NetworkStateSpace},
	}

	created := make([]models.Pubkey, 0, len(slots))
	for _, slot := range slots {
		_, err := r.CreateAccount(ctx, slot.key, programID, slot.space)
		if errors.Is(err, store.ErrAccountExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("创建槽位 %s 失败: %w", slot.key.Hex(), err)
		}
		created = append(created, slot.key)
	}
	return created, nil
}

// CreateAnalysisAccount 为目标程序创建分析记录槽位
func (r *Runtime) CreateAnalysisAccount(ctx context.Context, target models.Pubkey) (models.Pubkey, error) {
	programID := r.ProgramID()
	key := models.AnalysisAddress(programID, target)
	_, err := r.CreateAccount(ctx, key, programID, models.SecurityAnalysisSpace)
	if err != nil && !errors.Is(err, store.ErrAccountExists) {
		return key, err
	}
	return key, nil
}

// LoadAnalysis 读取目标程序的分析记录
func (r *Runtime) LoadAnalysis(ctx context.Context, target models.Pubkey) (*models.SecurityAnalysis, error) {
	record := &models.SecurityAnalysis{}
	if err := r.loadRecord(ctx, models.AnalysisAddress(r.ProgramID(), target), record); err != nil {
		return nil, err
	}
	return record, nil
}

// LoadMetrics 读取全局指标记录
func (r *Runtime) LoadMetrics(ctx context.Context) (*models.Metrics, error) {
	record := &models.Metrics{}
	if err := r.loadRecord(ctx, models.MetricsAddress(r.ProgramID()), record); err != nil {
		return nil, err
	}
	return record, nil
}

// LoadNetworkState 读取网络状态记录
func (r *Runtime) LoadNetworkState(ctx context.Context) (*models.NetworkState, error) {
	record := &models.NetworkState{}
	if err := r.loadRecord(ctx, models.NetworkStateAddress(r.ProgramID()), record); err != nil {
		return nil, err
	}
	return record, nil
}

type binaryRecord interface {
	UnmarshalBinary(data []byte) error
}

// loadRecord 读取并解码记录，空槽位视为不存在
func (r *Runtime) loadRecord(ctx context.Context, key models.Pubkey, record binaryRecord) error {
	account, err := r.accounts.Get(ctx, key)
	if err != nil {
		return err
	}
	if len(account.Data) == 0 {
		return fmt.Errorf("%w: %s 尚未写入", store.ErrAccountNotFound, key.Hex())
	}
	return record.UnmarshalBinary(account.Data)
}
