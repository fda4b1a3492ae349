package application

import "time"

//TelemetrySampleStored is the topic message published after a telemetry sample
//has been stored, so that downstream consumers can react to new readings
type TelemetrySampleStored struct {
	DeviceSerial string                 `json:"deviceSerial"`
	Timestamp    time.Time              `json:"timestamp"`
	Payload      map[string]interface{} `json:"payload"`
}

//NewTelemetrySampleStored creates the message for one stored sample
func NewTelemetrySampleStored(deviceSerial string, timestamp time.Time, payload map[string]interface{}) *TelemetrySampleStored {
	return &TelemetrySampleStored{
		DeviceSerial: deviceSerial,
		Timestamp:    timestamp,
		Payload:      payload,
	}
}

//TopicName returns the name of the topic that this message should be published on
func (m *TelemetrySampleStored) TopicName() string {
	return "telemetry.sample-stored"
}

//ContentType returns the content type of the message
func (m *TelemetrySampleStored) ContentType() string {
	return "application/json"
}
