package processor

import (
	"errors"
	"time"

	guarderrors "guard/internal/errors"
	"guard/internal/guard"
	"guard/internal/instruction"
	"guard/internal/scanner"
	"guard/pkg/models"

	"github.com/sirupsen/logrus"
)

// Clock 返回当前的Unix时间戳（秒）
type Clock func() int64

// SystemClock 使用本机时间
func SystemClock() int64 {
	return time.Now().Unix()
}

// Outcome 一次指令执行的结果
type Outcome struct {
	Instruction instruction.Instruction
	Timestamp   int64

	// 按指令类型只填充其一
	Report   *scanner.Report
	Analysis *models.SecurityAnalysis
	Metrics  *models.Metrics
	Network  *models.NetworkState
}

type handlerFunc func(p *Processor, accounts []*models.AccountInfo, ix instruction.Instruction) (*Outcome, error)

// dispatchTable 按指令判别字节分派
var dispatchTable = map[instruction.Tag]handlerFunc{
	instruction.TagAnalyzeContract:    (*Processor).analyzeContract,
	instruction.TagRecordMetrics:      (*Processor).recordMetrics,
	instruction.TagUpdateNetworkStats: (*Processor).updateNetworkStats,
}

// failureFor 各指令账户缺失或持久化失败时使用的错误
var failureFor = map[instruction.Tag]*guarderrors.GuardError{
	instruction.TagAnalyzeContract:    guarderrors.ErrAnalysisFailed,
	instruction.TagRecordMetrics:      guarderrors.ErrMetricsRecordingFailed,
	instruction.TagUpdateNetworkStats: guarderrors.ErrNetworkStatsUpdateFailed,
}

// FailureFor 返回指令对应的失败错误
func FailureFor(tag instruction.Tag) *guarderrors.GuardError {
	if err, ok := failureFor[tag]; ok {
		return err
	}
	return guarderrors.ErrInvalidInstructionData
}

// Processor 指令处理器
type Processor struct {
	programID models.Pubkey
	clock     Clock
	logger    logrus.FieldLogger
}

// NewProcessor 创建指令处理器
func NewProcessor(programID models.Pubkey, clock Clock, logger logrus.FieldLogger) *Processor {
	if clock == nil {
		clock = SystemClock
	}
	return &Processor{
		programID: programID,
		clock:     clock,
		logger:    logger,
	}
}

// ProgramID 返回程序ID
func (p *Processor) ProgramID() models.Pubkey {
	return p.programID
}

// Process 解码并执行一条指令
//
// 所有检查通过后才写入账户数据，失败时不修改任何账户。
func (p *Processor) Process(accounts []*models.AccountInfo, data []byte) (*Outcome, error) {
	if err := guard.CheckProgramID(p.programID); err != nil {
		return nil, err
	}

	ix, err := instruction.Decode(data)
	if err != nil {
		return nil, err
	}

	handler, ok := dispatchTable[ix.Tag()]
	if !ok {
		return nil, guarderrors.ErrInvalidInstructionData.WithContext("tag", uint8(ix.Tag()))
	}

	p.logger.Infof("指令: %s", ix.Tag())
	return handler(p, accounts, ix)
}

// analyzeContract 账户顺序: 目标程序(只读) 分析记录(可写) 授权方(签名) 网络状态(只读)
func (p *Processor) analyzeContract(accounts []*models.AccountInfo, ix instruction.Instruction) (*Outcome, error) {
	params := ix.(instruction.AnalyzeContract)
	iter := newAccountIter(accounts, FailureFor(instruction.TagAnalyzeContract))

	target, err := iter.next("target_program")
	if err != nil {
		return nil, err
	}
	analysisAccount, err := iter.next("analysis_record")
	if err != nil {
		return nil, err
	}
	authority, err := iter.next("authority")
	if err != nil {
		return nil, err
	}
	networkAccount, err := iter.next("network_record")
	if err != nil {
		return nil, err
	}

	err = guard.All(
		func() error { return guard.CheckSigner(authority) },
		func() error { return guard.CheckWritable(analysisAccount) },
		func() error { return guard.CheckOwner(analysisAccount, p.programID) },
		func() error { return guard.CheckOwner(networkAccount, p.programID) },
	)
	if err != nil {
		return nil, err
	}

	network, err := loadNetworkState(networkAccount)
	if err != nil {
		return nil, err
	}
	if network == nil {
		return nil, guarderrors.ErrInvalidAccountData.WithContext("reason", "网络状态未初始化")
	}
	if err := guard.CheckAuthority(network, authority); err != nil {
		return nil, err
	}

	if target.IsEmpty() {
		return nil, guarderrors.ErrInvalidTargetProgram.WithContext("target", target.Key.Hex())
	}
	if len(target.Data) > scanner.MaxContractSize {
		return nil, guarderrors.ErrInvalidAccountData.
			WithContext("target", target.Key.Hex()).
			WithContext("size", len(target.Data))
	}

	now := p.clock()
	record := models.NewSecurityAnalysis(target.Key, now)
	if !analysisAccount.IsEmpty() {
		if err := decodeRecord(analysisAccount, record); err != nil {
			return nil, err
		}
		if record.TargetProgram != target.Key {
			return nil, guarderrors.ErrInvalidTargetProgram.
				WithContext("target", target.Key.Hex()).
				WithContext("recorded", record.TargetProgram.Hex())
		}
	}

	record.BeginAnalysis()
	report := scanner.Score(target.Data, params.DataSize)
	for _, finding := range report.Findings {
		p.logger.Warnf("风险提示: %s", finding.Message)
	}
	record.PatternsVersion = scanner.PatternsVersion
	record.UpdateAnalysis(report.RiskScore, report.VulnerabilityCount(), now)

	if err := storeRecord(analysisAccount, record); err != nil {
		return nil, err
	}

	p.logger.Infof("安全分析完成，风险分数: %d", record.RiskScore)
	return &Outcome{Instruction: ix, Timestamp: now, Report: report, Analysis: record}, nil
}

// recordMetrics 账户顺序: 指标记录(可写) 授权方(签名)
func (p *Processor) recordMetrics(accounts []*models.AccountInfo, ix instruction.Instruction) (*Outcome, error) {
	params := ix.(instruction.RecordMetrics)
	iter := newAccountIter(accounts, FailureFor(instruction.TagRecordMetrics))

	metricsAccount, err := iter.next("metrics_record")
	if err != nil {
		return nil, err
	}
	authority, err := iter.next("authority")
	if err != nil {
		return nil, err
	}

	err = guard.All(
		func() error { return guard.CheckSigner(authority) },
		func() error { return guard.CheckWritable(metricsAccount) },
		func() error { return guard.CheckOwner(metricsAccount, p.programID) },
	)
	if err != nil {
		return nil, err
	}

	now := p.clock()
	record := models.NewMetrics(now)
	if !metricsAccount.IsEmpty() {
		if err := decodeRecord(metricsAccount, record); err != nil {
			return nil, err
		}
	}

	record.RecordTransaction(params.GasUsed, params.Success, now)
	if params.GasUsed > models.GasWarningThreshold {
		p.logger.Warnf("检测到高gas消耗: %d", params.GasUsed)
	}

	if err := storeRecord(metricsAccount, record); err != nil {
		return nil, err
	}

	p.logger.Infof("指标已记录，gas: %d, 成功: %t", params.GasUsed, params.Success)
	return &Outcome{Instruction: ix, Timestamp: now, Metrics: record}, nil
}

// updateNetworkStats 账户顺序: 网络状态(可写) 授权方(签名)
func (p *Processor) updateNetworkStats(accounts []*models.AccountInfo, ix instruction.Instruction) (*Outcome, error) {
	params := ix.(instruction.UpdateNetworkStats)
	iter := newAccountIter(accounts, FailureFor(instruction.TagUpdateNetworkStats))

	networkAccount, err := iter.next("network_record")
	if err != nil {
		return nil, err
	}
	authority, err := iter.next("authority")
	if err != nil {
		return nil, err
	}

	err = guard.All(
		func() error { return guard.CheckSigner(authority) },
		func() error { return guard.CheckWritable(networkAccount) },
		func() error { return guard.CheckOwner(networkAccount, p.programID) },
	)
	if err != nil {
		return nil, err
	}

	now := p.clock()
	record, err := loadNetworkState(networkAccount)
	if err != nil {
		return nil, err
	}
	if record == nil {
		// 首次写入时签名者成为授权方
		record = models.NewNetworkState(authority.Key, now)
	} else if err := guard.CheckAuthority(record, authority); err != nil {
		return nil, err
	}

	record.UpdateStats(params.TransactionsPerSecond, params.AverageBlockTime, now)

	if err := storeRecord(networkAccount, record); err != nil {
		return nil, err
	}

	p.logger.Infof("网络状态已更新，TPS: %d, 出块时间: %d", params.TransactionsPerSecond, params.AverageBlockTime)
	return &Outcome{Instruction: ix, Timestamp: now, Network: record}, nil
}

// loadNetworkState 读取网络状态，空账户返回nil
func loadNetworkState(account *models.AccountInfo) (*models.NetworkState, error) {
	if account.IsEmpty() {
		return nil, nil
	}
	state := &models.NetworkState{}
	if err := decodeRecord(account, state); err != nil {
		return nil, err
	}
	return state, nil
}

type binaryRecord interface {
	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error
}

func decodeRecord(account *models.AccountInfo, record binaryRecord) error {
	if err := record.UnmarshalBinary(account.Data); err != nil {
		if errors.Is(err, models.ErrCorruptRecord) {
			return guarderrors.ErrInvalidAccountData.Wrap(err).WithContext("account", account.Key.Hex())
		}
		return err
	}
	return nil
}

// storeRecord 序列化记录并写回账户
func storeRecord(account *models.AccountInfo, record binaryRecord) error {
	data, err := record.MarshalBinary()
	if err != nil {
		return guarderrors.ErrInvalidAccountData.Wrap(err)
	}
	if err := guard.CheckBufferSize(account.Space, len(data)); err != nil {
		return err
	}
	account.Data = data
	return nil
}

// accountIter 按顺序取出账户
type accountIter struct {
	accounts []*models.AccountInfo
	pos      int
	missing  *guarderrors.GuardError
}

func newAccountIter(accounts []*models.AccountInfo, missing *guarderrors.GuardError) *accountIter {
	return &accountIter{accounts: accounts, missing: missing}
}

func (it *accountIter) next(role string) (*models.AccountInfo, error) {
	if it.pos >= len(it.accounts) || it.accounts[it.pos] == nil {
		return nil, it.missing.WithContext("missing_account", role)
	}
	account := it.accounts[it.pos]
	it.pos++
	return account, nil
}
