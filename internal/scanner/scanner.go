package scanner

const (
	// MaxContractSize 扫描的最大字节数
	MaxContractSize = 1024 * 1024
	// PatternsVersion 当前特征规则版本
	PatternsVersion uint16 = 1

	// MemoryOpThreshold 内存操作计数上限
	MemoryOpThreshold = 500
	// InstructionThreshold 指令计数上限
	InstructionThreshold = 1000
)

var (
	// 潜在不安全指令序列
	unsafeSignature = [4]byte{0x48, 0x31, 0xc0, 0x90}
	// 自跳转死循环
	loopSignature = [2]byte{0xeb, 0xfe}
	// 内存读取操作
	memoryOpSignature = [2]byte{0x48, 0x8b}
)

// instructionOpcode 计入指令数的首字节
const instructionOpcode byte = 0xff

// bounded 只检查前 MaxContractSize 字节
func bounded(data []byte) []byte {
	if len(data) > MaxContractSize {
		return data[:MaxContractSize]
	}
	return data
}

// HasSuspiciousPatterns 检查是否包含已知的可疑字节特征
func HasSuspiciousPatterns(data []byte) bool {
	data = bounded(data)
	for i := 0; i+1 < len(data); i++ {
		if data[i] == loopSignature[0] && data[i+1] == loopSignature[1] {
			return true
		}
		if i+3 < len(data) &&
			data[i] == unsafeSignature[0] && data[i+1] == unsafeSignature[1] &&
			data[i+2] == unsafeSignature[2] && data[i+3] == unsafeSignature[3] {
			return true
		}
	}
	return false
}

// ResourceCounts 资源使用计数
type ResourceCounts struct {
	MemoryOps    int `json:"memory_ops"`
	Instructions int `json:"instructions"`
}

// Excessive 是否超过阈值
func (c ResourceCounts) Excessive() bool {
	return c.MemoryOps > MemoryOpThreshold || c.Instructions > InstructionThreshold
}

// CountResources 以2字节窗口统计内存操作和指令数
func CountResources(data []byte) ResourceCounts {
	return countResources(data, false)
}

// HasExcessiveResourceUsage 内存操作或指令数是否超过阈值
func HasExcessiveResourceUsage(data []byte) bool {
	return countResources(data, true).Excessive()
}

func countResources(data []byte, stopWhenExcessive bool) ResourceCounts {
	data = bounded(data)
	var counts ResourceCounts
	for i := 0; i+1 < len(data); i++ {
		if data[i] == memoryOpSignature[0] && data[i+1] == memoryOpSignature[1] {
			counts.MemoryOps++
		}
		if data[i] == instructionOpcode {
			counts.Instructions++
		}
		if stopWhenExcessive && counts.Excessive() {
			break
		}
	}
	return counts
}
