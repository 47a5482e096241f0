package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	guarderrors "guard/internal/errors"
	"guard/internal/events"
	"guard/internal/instruction"
	"guard/internal/logging"
	"guard/internal/metrics"
	"guard/internal/processor"
	"guard/internal/store"
	"guard/pkg/models"

	"github.com/sirupsen/logrus"
)

// AccountMeta 指令引用的账户及其权限
type AccountMeta struct {
	Key        models.Pubkey `json:"key"`
	IsSigner   bool          `json:"is_signer"`
	IsWritable bool          `json:"is_writable"`
}

// Options 运行时选项
type Options struct {
	// AutoCreate 为缺失的可写账户创建程序所有的空槽位
	AutoCreate   bool
	DefaultSpace uint32

	Publisher    events.Publisher
	Collector    *metrics.Collector
	ErrorHandler *guarderrors.ErrorHandler
}

// Runtime 账户加载、指令执行与提交，调用串行执行
type Runtime struct {
	mu        sync.Mutex
	accounts  store.AccountStore
	processor *processor.Processor
	logger    *logrus.Logger

	autoCreate   bool
	defaultSpace uint32
	publisher    events.Publisher
	collector    *metrics.Collector
	errorHandler *guarderrors.ErrorHandler
}

// NewRuntime 创建运行时
func NewRuntime(accounts store.AccountStore, proc *processor.Processor, logger *logrus.Logger, opts Options) *Runtime {
	if opts.Publisher == nil {
		opts.Publisher = events.NopPublisher{}
	}
	if opts.ErrorHandler == nil {
		opts.ErrorHandler = guarderrors.NewErrorHandler(logger)
	}
	return &Runtime{
		accounts:     accounts,
		processor:    proc,
		logger:       logger,
		autoCreate:   opts.AutoCreate,
		defaultSpace: opts.DefaultSpace,
		publisher:    opts.Publisher,
		collector:    opts.Collector,
		errorHandler: opts.ErrorHandler,
	}
}

// ProgramID 返回程序ID
func (r *Runtime) ProgramID() models.Pubkey {
	return r.processor.ProgramID()
}

// ErrorStats 返回错误统计快照
func (r *Runtime) ErrorStats() guarderrors.ErrorStats {
	return r.errorHandler.GetStats()
}

// Invoke 加载账户并执行一条指令，成功后在一个事务内提交被修改的可写账户
func (r *Runtime) Invoke(ctx context.Context, metas []AccountMeta, data []byte) (*processor.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tag, name := instructionName(data)
	logger := logging.NewInstructionLogger(r.logger, name, r.ProgramID().Hex())

	start := time.Now()
	outcome, committed, err := r.invoke(ctx, metas, data, tag)
	elapsed := time.Since(start)
	if r.collector != nil {
		r.collector.ObserveInvocation(name, elapsed, err)
	}
	if err != nil {
		return nil, r.errorHandler.HandleError(ctx, err)
	}
	if r.collector != nil {
		r.collector.ObserveOutcome(outcome)
	}
	logger.WithFields(logrus.Fields{
		"account":  committed.Hex(),
		"duration": elapsed,
	}).Debug("指令已提交")

	r.publish(ctx, logger, committed, outcome)
	return outcome, nil
}

// reject 记录未进入执行就被拒绝的指令
func (r *Runtime) reject(ctx context.Context, data []byte, err error) error {
	_, name := instructionName(data)
	if r.collector != nil {
		r.collector.ObserveInvocation(name, 0, err)
	}
	return r.errorHandler.HandleError(ctx, err)
}

func instructionName(data []byte) (instruction.Tag, string) {
	if len(data) == 0 {
		return 0, "unknown"
	}
	tag := instruction.Tag(data[0])
	return tag, tag.String()
}

func (r *Runtime) invoke(ctx context.Context, metas []AccountMeta, data []byte, tag instruction.Tag) (*processor.Outcome, models.Pubkey, error) {
	infos, original, err := r.loadAccounts(ctx, metas)
	if err != nil {
		return nil, models.Pubkey{}, processor.FailureFor(tag).Wrap(err).WithComponent("runtime")
	}

	outcome, err := r.processor.Process(infos, data)
	if err != nil {
		return nil, models.Pubkey{}, err
	}

	var changed []*store.Account
	for i, info := range infos {
		if !metas[i].IsWritable || bytes.Equal(original[i], info.Data) {
			continue
		}
		changed = append(changed, &store.Account{
			Key:   info.Key,
			Owner: info.Owner,
			Space: uint32(info.Space),
			Data:  info.Data,
		})
	}

	var committed models.Pubkey
	if len(changed) > 0 {
		if err := r.accounts.Commit(ctx, changed); err != nil {
			return nil, models.Pubkey{}, processor.FailureFor(tag).Wrap(err).WithComponent("store")
		}
		committed = changed[0].Key
	}
	return outcome, committed, nil
}

// loadAccounts 读取账户，返回账户视图和原始数据副本
func (r *Runtime) loadAccounts(ctx context.Context, metas []AccountMeta) ([]*models.AccountInfo, [][]byte, error) {
	infos := make([]*models.AccountInfo, len(metas))
	original := make([][]byte, len(metas))

	for i, meta := range metas {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		info := &models.AccountInfo{
			Key:        meta.Key,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
		}

		account, err := r.accounts.Get(ctx, meta.Key)
		switch {
		case err == nil:
			info.Owner = account.Owner
			info.Space = int(account.Space)
			info.Data = account.Data
			original[i] = bytes.Clone(account.Data)
		case errors.Is(err, store.ErrAccountNotFound):
			if r.autoCreate && meta.IsWritable {
				info.Owner = r.ProgramID()
				info.Space = int(r.defaultSpace)
			}
		default:
			return nil, nil, fmt.Errorf("读取账户 %s 失败: %w", meta.Key.Hex(), err)
		}

		infos[i] = info
	}
	return infos, original, nil
}

// publish 发布事件，失败只记录日志，账户已提交
func (r *Runtime) publish(ctx context.Context, logger logrus.FieldLogger, account models.Pubkey, outcome *processor.Outcome) {
	event, err := events.FromOutcome(r.ProgramID(), account, outcome)
	if err != nil {
		logger.WithError(err).Warn("构造事件失败")
		return
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		logger.WithError(err).Warnf("发布事件失败: %s", event.Type)
	}
}

// Close 关闭事件发布器和账户存储
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pubErr := r.publisher.Close()
	storeErr := r.accounts.Close()
	if pubErr != nil {
		return pubErr
	}
	return storeErr
}
