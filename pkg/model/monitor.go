package model

import "time"

type MonitorStatus string

const (
	MonitorDone    MonitorStatus = "DONE"
	MonitorIgnored MonitorStatus = "IGNORED"
	MonitorError   MonitorStatus = "ERROR"
)

// MonitorLog records the outcome of one pipeline, stage, unit or action execution. StageID,
// UnitID and ActionID are empty above their level.
type MonitorLog struct {
	TenantID     string        `json:"tenantId"`
	TraceID      string        `json:"traceId"`
	Round        int           `json:"round"`
	PipelineID   string        `json:"pipelineId"`
	TopicID      string        `json:"topicId"`
	DataID       string        `json:"dataId,omitempty"`
	StageID      string        `json:"stageId,omitempty"`
	UnitID       string        `json:"unitId,omitempty"`
	ActionID     string        `json:"actionId,omitempty"`
	Status       MonitorStatus `json:"status"`
	StartTime    time.Time     `json:"startTime"`
	SpentInMills int64         `json:"spentInMills"`
	Error        string        `json:"error,omitempty"`
}

// Level names the node the log describes.
func (l *MonitorLog) Level() string {
	switch {
	case l.ActionID != "":
		return "action"
	case l.UnitID != "":
		return "unit"
	case l.StageID != "":
		return "stage"
	default:
		return "pipeline"
	}
}
