package models

import "time"

// GroupViewedEvent 在用户打开群组页面时发布到 Kafka，触发异步的名称对账。
type GroupViewedEvent struct {
	EventID  string    `json:"event_id"`
	GroupID  string    `json:"group_id"`
	UserID   string    `json:"user_id"`
	ViewedAt time.Time `json:"viewed_at"`
}

// SyncResultEvent 记录一次对账的结果。
type SyncResultEvent struct {
	EventID    string    `json:"event_id"`
	GroupID    string    `json:"group_id"`
	UserID     string    `json:"user_id"`
	Synced     bool      `json:"synced"`          // 是否发起了至少一次名称修正
	Error      string    `json:"error,omitempty"` // 对账本身失败时的错误信息
	Trigger    string    `json:"trigger"`         // "api" 或 "group_viewed"
	FinishedAt time.Time `json:"finished_at"`
}

// 对账触发来源。
const (
	TriggerAPI         = "api"
	TriggerGroupViewed = "group_viewed"
)

// SyncNotice 通过 WebSocket 推送给正在查看群组的用户。
type SyncNotice struct {
	Type    string `json:"type"` // 固定为 "resources_synced"
	GroupID string `json:"group_id"`
}
