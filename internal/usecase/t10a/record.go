package t10a

import (
	"time"

	protocol "luxmeter-gateway/internal/protocol/t10a"
)

// MeasurementRecord 是投递到消息队列的一次测量结果
type MeasurementRecord struct {
	DeviceID     string              `json:"device_id"`
	ReceptorHead int                 `json:"receptor_head"`
	Status       string              `json:"status"`
	Illuminance  protocol.Reading    `json:"illuminance"`
	Readings     [3]protocol.Reading `json:"readings"`
	Timestamp    time.Time           `json:"timestamp"`
}

// NewMeasurementRecord 由长帧构建记录。第一个测量值为照度 (lx)。
func NewMeasurementRecord(deviceID string, lf protocol.LongFrame, at time.Time) MeasurementRecord {
	return MeasurementRecord{
		DeviceID:     deviceID,
		ReceptorHead: lf.ReceptorHead,
		Status:       lf.Status,
		Illuminance:  lf.Readings[0],
		Readings:     lf.Readings,
		Timestamp:    at,
	}
}
