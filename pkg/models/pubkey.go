package models

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Pubkey 32字节账户标识
type Pubkey = common.Hash

// PubkeyLength 账户标识长度
const PubkeyLength = common.HashLength

// 记录槽位派生种子
const (
	SeedAnalysis     = "analysis"
	SeedMetrics      = "metrics"
	SeedNetworkStats = "network-stats"
)

// DeriveAddress 根据种子和程序ID派生记录槽位地址
func DeriveAddress(programID Pubkey, seeds ...[]byte) Pubkey {
	parts := make([][]byte, 0, len(seeds)+1)
	parts = append(parts, seeds...)
	parts = append(parts, programID.Bytes())
	return crypto.Keccak256Hash(parts...)
}

// AnalysisAddress 目标程序对应的分析记录地址
func AnalysisAddress(programID, target Pubkey) Pubkey {
	return DeriveAddress(programID, []byte(SeedAnalysis), target.Bytes())
}

// MetricsAddress 全局指标记录地址
func MetricsAddress(programID Pubkey) Pubkey {
	return DeriveAddress(programID, []byte(SeedMetrics))
}

// NetworkStateAddress 全局网络状态记录地址
func NetworkStateAddress(programID Pubkey) Pubkey {
	return DeriveAddress(programID, []byte(SeedNetworkStats))
}

// ParsePubkey 解析十六进制账户标识，0x前缀可选
func ParsePubkey(s string) (Pubkey, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("解析账户标识失败: %w", err)
	}
	if len(raw) != PubkeyLength {
		return Pubkey{}, fmt.Errorf("账户标识长度错误: 期望 %d 字节, 实际 %d 字节", PubkeyLength, len(raw))
	}
	return common.BytesToHash(raw), nil
}

// IsZeroPubkey 检查是否为全零标识
func IsZeroPubkey(key Pubkey) bool {
	return key == (Pubkey{})
}
