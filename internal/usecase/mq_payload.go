package usecase

// 载荷类型标识
const (
	PayloadTypeMeasurement = "measurement"
)

// MQPayload 包装消息队列载荷，增加类型与设备标识
type MQPayload struct {
	Type     string      `json:"type"`
	DeviceID string      `json:"device_id"`
	Data     interface{} `json:"data"`
}

// Key 以设备编号作为消息 key，保证同一台仪表的数据有序
func (p MQPayload) Key() string {
	return p.DeviceID
}
