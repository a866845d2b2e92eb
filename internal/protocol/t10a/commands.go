package t10a

// 命令标识
const (
	CmdPCConnectionMode = "54" // 切换到 PC 连接模式
	CmdMeasurement      = "10" // 设置测量条件并读取测量值
)

// PC 连接模式固定参数。请求只发往 0 号受光头。
const (
	PCModeReceptorHead = 0
	PCModeParameter    = "1   "
	PCModeAckParameter = "    "
)

// PCConnectionRequest 构建 PC 连接模式请求帧 (0, "54", "1   ")
func PCConnectionRequest() []byte {
	return mustEncodeShort(PCModeReceptorHead, CmdPCConnectionMode, PCModeParameter)
}

// PCConnectionAck 返回仪表对 PC 连接模式请求的期望应答
func PCConnectionAck() ShortFrame {
	return ShortFrame{
		ReceptorHead: PCModeReceptorHead,
		Command:      CmdPCConnectionMode,
		Parameter:    PCModeAckParameter,
	}
}

// PCConnectionAckFrame 是 PCConnectionAck 的线上字节形式
func PCConnectionAckFrame() []byte {
	return mustEncodeShort(PCModeReceptorHead, CmdPCConnectionMode, PCModeAckParameter)
}

// MeasurementRequest 构建测量请求帧，rangeParameter 为 4 字符的量程/模式参数。
func MeasurementRequest(receptorHead int, rangeParameter string) ([]byte, error) {
	return EncodeShort(receptorHead, CmdMeasurement, rangeParameter)
}

// mustEncodeShort is only used with the fixed values above.
func mustEncodeShort(head int, command, parameter string) []byte {
	frame, err := EncodeShort(head, command, parameter)
	if err != nil {
		panic(err)
	}
	return frame
}
