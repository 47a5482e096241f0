package models

// NetworkStateSpace 记录长度: 授权方(32) 初始化时间(8) 更新时间(8) TPS(8) 平均出块时间(8)
const NetworkStateSpace = 32 + 8 + 8 + 8 + 8

// NetworkState 全局网络状态记录，同时承载程序授权方
type NetworkState struct {
	Authority             Pubkey
	InitializedAt         int64
	LastUpdated           int64
	TransactionsPerSecond uint64
	AverageBlockTime      uint64
}

// NewNetworkState 以首个签名者为授权方初始化
func NewNetworkState(authority Pubkey, timestamp int64) *NetworkState {
	return &NetworkState{
		Authority:     authority,
		InitializedAt: timestamp,
		LastUpdated:   timestamp,
	}
}

// IsAuthority 检查是否为授权方
func (n *NetworkState) IsAuthority(key Pubkey) bool {
	return n.Authority == key
}

// UpdateStats 更新网络统计
func (n *NetworkState) UpdateStats(tps, averageBlockTime uint64, timestamp int64) {
	n.TransactionsPerSecond = tps
	n.AverageBlockTime = averageBlockTime
	n.LastUpdated = timestamp
}

// MarshalBinary 编码为定长小端布局
func (n *NetworkState) MarshalBinary() ([]byte, error) {
	w := newRecordWriter(NetworkStateSpace)
	w.pubkey(n.Authority)
	w.i64(n.InitializedAt)
	w.i64(n.LastUpdated)
	w.u64(n.TransactionsPerSecond)
	w.u64(n.AverageBlockTime)
	return w.bytes(), nil
}

// UnmarshalBinary 从定长布局解码
func (n *NetworkState) UnmarshalBinary(data []byte) error {
	if len(data) != NetworkStateSpace {
		return corruptf("网络状态记录长度 %d, 期望 %d", len(data), NetworkStateSpace)
	}

	r := newRecordReader(data)
	decoded := NetworkState{
		Authority:             r.pubkey(),
		InitializedAt:         r.i64(),
		LastUpdated:           r.i64(),
		TransactionsPerSecond: r.u64(),
		AverageBlockTime:      r.u64(),
	}
	if r.err != nil {
		return r.err
	}
	*n = decoded
	return nil
}
