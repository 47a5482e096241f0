package processor

import (
	"errors"
	"testing"

	guarderrors "guard/internal/errors"
	"guard/internal/instruction"
	"guard/internal/scanner"
	"guard/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testProgramID = common.HexToHash("0x6775617264")
	authorityKey  = common.HexToHash("0xa11ce")
	targetKey     = common.HexToHash("0x7a7a")
)

type fixture struct {
	processor *Processor
	now       int64
}

func newFixture() *fixture {
	f := &fixture{now: 1_700_000_000}
	logger, _ := test.NewNullLogger()
	f.processor = NewProcessor(testProgramID, func() int64 { return f.now }, logger)
	return f
}

func programAccount(key models.Pubkey, space int) *models.AccountInfo {
	return &models.AccountInfo{Key: key, Owner: testProgramID, IsWritable: true, Space: space}
}

func signer(key models.Pubkey) *models.AccountInfo {
	return &models.AccountInfo{Key: key, IsSigner: true}
}

func encode(t *testing.T, ix instruction.Instruction) []byte {
	t.Helper()
	data, err := instruction.Encode(ix)
	require.NoError(t, err)
	return data
}

func assertCode(t *testing.T, err error, expected *guarderrors.GuardError) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, expected), "期望 %s, 实际 %v", expected.Code, err)
}

// initNetwork 以authorityKey初始化网络状态账户
func (f *fixture) initNetwork(t *testing.T) *models.AccountInfo {
	t.Helper()
	network := programAccount(models.NetworkStateAddress(testProgramID), models.NetworkStateSpace)
	_, err := f.processor.Process(
		[]*models.AccountInfo{network, signer(authorityKey)},
		encode(t, instruction.UpdateNetworkStats{TransactionsPerSecond: 1000, AverageBlockTime: 400}),
	)
	require.NoError(t, err)
	network.IsWritable = false
	return network
}

func (f *fixture) analyzeAccounts(target []byte, network *models.AccountInfo) []*models.AccountInfo {
	return []*models.AccountInfo{
		{Key: targetKey, Data: target},
		programAccount(models.AnalysisAddress(testProgramID, targetKey), models.SecurityAnalysisSpace),
		signer(authorityKey),
		network,
	}
}

func TestProcess_RejectsBadInput(t *testing.T) {
	f := newFixture()

	_, err := f.processor.Process(nil, nil)
	assertCode(t, err, guarderrors.ErrInvalidInstructionData)

	_, err = f.processor.Process(nil, []byte{9})
	assertCode(t, err, guarderrors.ErrInvalidInstructionData)

	logger, _ := test.NewNullLogger()
	zero := NewProcessor(models.Pubkey{}, nil, logger)
	_, err = zero.Process(nil, encode(t, instruction.AnalyzeContract{DataSize: 1}))
	assertCode(t, err, guarderrors.ErrInvalidAccountData)
}

func TestUpdateNetworkStats(t *testing.T) {
	f := newFixture()
	network := programAccount(models.NetworkStateAddress(testProgramID), models.NetworkStateSpace)

	outcome, err := f.processor.Process(
		[]*models.AccountInfo{network, signer(authorityKey)},
		encode(t, instruction.UpdateNetworkStats{TransactionsPerSecond: 2500, AverageBlockTime: 400}),
	)
	require.NoError(t, err)
	require.NotNil(t, outcome.Network)
	assert.Equal(t, authorityKey, outcome.Network.Authority)
	assert.Len(t, network.Data, models.NetworkStateSpace)

	f.now += 60
	_, err = f.processor.Process(
		[]*models.AccountInfo{network, signer(authorityKey)},
		encode(t, instruction.UpdateNetworkStats{TransactionsPerSecond: 3000, AverageBlockTime: 380}),
	)
	require.NoError(t, err)

	var state models.NetworkState
	require.NoError(t, state.UnmarshalBinary(network.Data))
	assert.Equal(t, uint64(3000), state.TransactionsPerSecond)
	assert.Equal(t, uint64(380), state.AverageBlockTime)
	assert.Equal(t, f.now-60, state.InitializedAt)
	assert.Equal(t, f.now, state.LastUpdated)
}

func TestUpdateNetworkStats_Errors(t *testing.T) {
	ix := instruction.UpdateNetworkStats{TransactionsPerSecond: 1, AverageBlockTime: 1}

	tests := []struct {
		name     string
		accounts func(f *fixture, t *testing.T) []*models.AccountInfo
		expected *guarderrors.GuardError
	}{
		{
			name: "非授权方",
			accounts: func(f *fixture, t *testing.T) []*models.AccountInfo {
				network := f.initNetwork(t)
				network.IsWritable = true
				return []*models.AccountInfo{network, signer(common.HexToHash("0xbad"))}
			},
			expected: guarderrors.ErrUnauthorizedAccount,
		},
		{
			name: "未签名",
			accounts: func(f *fixture, t *testing.T) []*models.AccountInfo {
				network := programAccount(models.NetworkStateAddress(testProgramID), models.NetworkStateSpace)
				return []*models.AccountInfo{network, {Key: authorityKey}}
			},
			expected: guarderrors.ErrUnauthorizedAccount,
		},
		{
			name: "账户不属于本程序",
			accounts: func(f *fixture, t *testing.T) []*models.AccountInfo {
				network := programAccount(models.NetworkStateAddress(testProgramID), models.NetworkStateSpace)
				network.Owner = common.HexToHash("0x01")
				return []*models.AccountInfo{network, signer(authorityKey)}
			},
			expected: guarderrors.ErrInvalidAccountData,
		},
		{
			name: "缺少授权账户",
			accounts: func(f *fixture, t *testing.T) []*models.AccountInfo {
				return []*models.AccountInfo{programAccount(models.NetworkStateAddress(testProgramID), models.NetworkStateSpace)}
			},
			expected: guarderrors.ErrNetworkStatsUpdateFailed,
		},
		{
			name: "槽位空间不足",
			accounts: func(f *fixture, t *testing.T) []*models.AccountInfo {
				network := programAccount(models.NetworkStateAddress(testProgramID), 32)
				return []*models.AccountInfo{network, signer(authorityKey)}
			},
			expected: guarderrors.ErrInsufficientBufferSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			accounts := tt.accounts(f, t)
			before := append([]byte(nil), accounts[0].Data...)

			_, err := f.processor.Process(accounts, encode(t, ix))
			assertCode(t, err, tt.expected)
			assert.Equal(t, before, append([]byte(nil), accounts[0].Data...))
		})
	}
}

func TestAnalyzeContract_SuspiciousPattern(t *testing.T) {
	f := newFixture()
	network := f.initNetwork(t)
	accounts := f.analyzeAccounts([]byte{0x48, 0x31, 0xc0, 0x90}, network)

	outcome, err := f.processor.Process(accounts, encode(t, instruction.AnalyzeContract{DataSize: 100}))
	require.NoError(t, err)
	require.NotNil(t, outcome.Report)
	assert.Equal(t, uint8(85), outcome.Report.RiskScore)

	var record models.SecurityAnalysis
	require.NoError(t, record.UnmarshalBinary(accounts[1].Data))
	assert.Equal(t, targetKey, record.TargetProgram)
	assert.Equal(t, uint8(85), record.RiskScore)
	assert.Equal(t, uint16(1), record.VulnerabilityCount)
	assert.Equal(t, models.StatusCompleted, record.Status)
	assert.Equal(t, scanner.PatternsVersion, record.PatternsVersion)
	assert.Equal(t, f.now, record.LastAnalysis)
	assert.Equal(t, 1, record.History.Len())
}

func TestAnalyzeContract_OversizedAgainstDeclared(t *testing.T) {
	f := newFixture()
	network := f.initNetwork(t)
	accounts := f.analyzeAccounts(make([]byte, 200), network)

	outcome, err := f.processor.Process(accounts, encode(t, instruction.AnalyzeContract{DataSize: 100}))
	require.NoError(t, err)
	assert.Equal(t, uint8(90), outcome.Analysis.RiskScore)
	assert.Equal(t, uint16(1), outcome.Analysis.VulnerabilityCount)
}

func TestAnalyzeContract_HistoryAcrossInvocations(t *testing.T) {
	f := newFixture()
	network := f.initNetwork(t)
	accounts := f.analyzeAccounts([]byte{0x90, 0x90}, network)

	for i := 0; i < 11; i++ {
		f.now++
		_, err := f.processor.Process(accounts, encode(t, instruction.AnalyzeContract{DataSize: 2}))
		require.NoError(t, err)
	}

	var record models.SecurityAnalysis
	require.NoError(t, record.UnmarshalBinary(accounts[1].Data))
	assert.Equal(t, models.AnalysisHistoryCapacity, record.History.Len())
	assert.Equal(t, f.now-9, record.History.At(0).Timestamp)

	trend, ok := record.RiskTrend()
	require.True(t, ok)
	assert.Equal(t, 0, trend)
}

func TestAnalyzeContract_Errors(t *testing.T) {
	ix := instruction.AnalyzeContract{DataSize: 10}

	tests := []struct {
		name     string
		accounts func(f *fixture, t *testing.T) []*models.AccountInfo
		expected *guarderrors.GuardError
	}{
		{
			name: "未签名",
			accounts: func(f *fixture, t *testing.T) []*models.AccountInfo {
				accounts := f.analyzeAccounts([]byte{1}, f.initNetwork(t))
				accounts[2].IsSigner = false
				return accounts
			},
			expected: guarderrors.ErrUnauthorizedAccount,
		},
		{
			name: "非授权方",
			accounts: func(f *fixture, t *testing.T) []*models.AccountInfo {
				accounts := f.analyzeAccounts([]byte{1}, f.initNetwork(t))
				accounts[2] = signer(common.HexToHash("0xbad"))
				return accounts
			},
			expected: guarderrors.ErrUnauthorizedAccount,
		},
		{
			name: "分析记录不属于本程序",
			accounts: func(f *fixture, t *testing.T) []*models.AccountInfo {
				accounts := f.analyzeAccounts([]byte{1}, f.initNetwork(t))
				accounts[1].Owner = common.HexToHash("0x01")
				return accounts
			},
			expected: guarderrors.ErrInvalidAccountData,
		},
		{
			name: "网络状态未初始化",
			accounts: func(f *fixture, t *testing.T) []*models.AccountInfo {
				network := programAccount(models.NetworkStateAddress(testProgramID), models.NetworkStateSpace)
				return f.analyzeAccounts([]byte{1}, network)
			},
			expected: guarderrors.ErrInvalidAccountData,
		},
		{
			name: "网络状态损坏",
			accounts: func(f *fixture, t *testing.T) []*models.AccountInfo {
				network := programAccount(models.NetworkStateAddress(testProgramID), models.NetworkStateSpace)
				network.Data = []byte{1, 2, 3}
				return f.analyzeAccounts([]byte{1}, network)
			},
			expected: guarderrors.ErrInvalidAccountData,
		},
		{
			name: "目标程序为空",
			accounts: func(f *fixture, t *testing.T) []*models.AccountInfo {
				return f.analyzeAccounts(nil, f.initNetwork(t))
			},
			expected: guarderrors.ErrInvalidTargetProgram,
		},
		{
			name: "目标程序过大",
			accounts: func(f *fixture, t *testing.T) []*models.AccountInfo {
				return f.analyzeAccounts(make([]byte, scanner.MaxContractSize+1), f.initNetwork(t))
			},
			expected: guarderrors.ErrInvalidAccountData,
		},
		{
			name: "记录属于其他目标",
			accounts: func(f *fixture, t *testing.T) []*models.AccountInfo {
				accounts := f.analyzeAccounts([]byte{1}, f.initNetwork(t))
				other, err := models.NewSecurityAnalysis(common.HexToHash("0x0123"), 1).MarshalBinary()
				require.NoError(t, err)
				accounts[1].Data = other
				return accounts
			},
			expected: guarderrors.ErrInvalidTargetProgram,
		},
		{
			name: "缺少网络状态账户",
			accounts: func(f *fixture, t *testing.T) []*models.AccountInfo {
				return f.analyzeAccounts([]byte{1}, f.initNetwork(t))[:3]
			},
			expected: guarderrors.ErrAnalysisFailed,
		},
		{
			name: "槽位空间不足",
			accounts: func(f *fixture, t *testing.T) []*models.AccountInfo {
				accounts := f.analyzeAccounts([]byte{1}, f.initNetwork(t))
				accounts[1].Space = models.SecurityAnalysisBaseSpace
				return accounts
			},
			expected: guarderrors.ErrInsufficientBufferSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			accounts := tt.accounts(f, t)
			var before []byte
			if len(accounts) > 1 {
				before = append([]byte(nil), accounts[1].Data...)
			}

			_, err := f.processor.Process(accounts, encode(t, ix))
			assertCode(t, err, tt.expected)
			if len(accounts) > 1 {
				assert.Equal(t, before, append([]byte(nil), accounts[1].Data...))
			}
		})
	}
}

func TestRecordMetrics(t *testing.T) {
	f := newFixture()
	metricsAccount := programAccount(models.MetricsAddress(testProgramID), models.MetricsSpace)
	accounts := []*models.AccountInfo{metricsAccount, signer(authorityKey)}

	_, err := f.processor.Process(accounts, encode(t, instruction.RecordMetrics{GasUsed: 1000, Success: true}))
	require.NoError(t, err)
	f.now++
	outcome, err := f.processor.Process(accounts, encode(t, instruction.RecordMetrics{GasUsed: 2000, Success: false}))
	require.NoError(t, err)
	require.NotNil(t, outcome.Metrics)

	var record models.Metrics
	require.NoError(t, record.UnmarshalBinary(metricsAccount.Data))
	assert.Equal(t, uint64(2), record.TotalTransactions)
	assert.Equal(t, uint8(50), record.SuccessRate)
	assert.Equal(t, uint64(2000), record.PeakGasUsed)
	assert.Equal(t, uint64(1), record.ErrorCount)
	assert.Equal(t, uint64(1500), record.AvgGasUsed)
	assert.Equal(t, f.now, record.LastUpdate)
}

func TestRecordMetrics_Errors(t *testing.T) {
	ix := instruction.RecordMetrics{GasUsed: 1, Success: true}

	tests := []struct {
		name     string
		accounts func() []*models.AccountInfo
		expected *guarderrors.GuardError
	}{
		{
			name: "缺少账户",
			accounts: func() []*models.AccountInfo {
				return nil
			},
			expected: guarderrors.ErrMetricsRecordingFailed,
		},
		{
			name: "未签名",
			accounts: func() []*models.AccountInfo {
				return []*models.AccountInfo{programAccount(models.MetricsAddress(testProgramID), models.MetricsSpace), {Key: authorityKey}}
			},
			expected: guarderrors.ErrUnauthorizedAccount,
		},
		{
			name: "只读账户",
			accounts: func() []*models.AccountInfo {
				account := programAccount(models.MetricsAddress(testProgramID), models.MetricsSpace)
				account.IsWritable = false
				return []*models.AccountInfo{account, signer(authorityKey)}
			},
			expected: guarderrors.ErrInvalidAccountData,
		},
		{
			name: "记录损坏",
			accounts: func() []*models.AccountInfo {
				account := programAccount(models.MetricsAddress(testProgramID), models.MetricsSpace)
				account.Data = make([]byte, models.MetricsBaseSpace)
				return []*models.AccountInfo{account, signer(authorityKey)}
			},
			expected: guarderrors.ErrInvalidAccountData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.processor.Process(tt.accounts(), encode(t, ix))
			assertCode(t, err, tt.expected)
		})
	}
}

func TestFailureFor(t *testing.T) {
	assert.Same(t, guarderrors.ErrAnalysisFailed, FailureFor(instruction.TagAnalyzeContract))
	assert.Same(t, guarderrors.ErrMetricsRecordingFailed, FailureFor(instruction.TagRecordMetrics))
	assert.Same(t, guarderrors.ErrNetworkStatsUpdateFailed, FailureFor(instruction.TagUpdateNetworkStats))
	assert.Same(t, guarderrors.ErrInvalidInstructionData, FailureFor(instruction.Tag(42)))
}
