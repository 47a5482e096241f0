package models

// AccountInfo 指令执行时可见的账户视图
type AccountInfo struct {
	Key        Pubkey
	Owner      Pubkey
	IsSigner   bool
	IsWritable bool
	Data       []byte
	// Space 槽位可写入的最大字节数
	Space int
}

// IsEmpty 账户是否尚未写入数据
func (a *AccountInfo) IsEmpty() bool {
	return len(a.Data) == 0
}
