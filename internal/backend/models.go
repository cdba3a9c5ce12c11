package backend

// Message 后台下发的待发送任务（设备侧只读视图）。
// 审计时间戳与状态归后台所有，设备从不改写，只通过事件上报间接驱动。
type Message struct {
	ID        string `json:"id"`
	Contact   string `json:"contact"`
	Content   string `json:"content"`
	SIM       string `json:"sim"`
	Encrypted bool   `json:"encrypted"`
	Owner     string `json:"owner"`
	Status    string `json:"status"`
	Type      string `json:"type"`

	CreatedAt   string  `json:"created_at"`
	SentAt      *string `json:"sent_at"`
	DeliveredAt *string `json:"delivered_at"`
	FailedAt    *string `json:"failed_at"`
}

// Phone 注册 upsert 返回的账号标识
type Phone struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
}

// 后台统一响应包装
type messageResponse struct {
	Data    *Message `json:"data"`
	Message string   `json:"message"`
	Status  string   `json:"status"`
}

type phoneResponse struct {
	Data    *Phone `json:"data"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// 事件名词汇表
const (
	EventSent       = "SENT"
	EventDelivered  = "DELIVERED"
	EventFailed     = "FAILED"
	EventReceived   = "RECEIVED"
	EventMissedCall = "MISSED_CALL"
	EventHeartbeat  = "HEARTBEAT"
)

// ReceiveRequest 来信上报体
type ReceiveRequest struct {
	SIM       string `json:"sim"`
	From      string `json:"from"`
	To        string `json:"to"`
	Content   string `json:"content"`
	Encrypted bool   `json:"encrypted"`
	Timestamp string `json:"timestamp"`
}

// MissedCallRequest 未接来电上报体
type MissedCallRequest struct {
	SIM       string `json:"sim"`
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp string `json:"timestamp"`
}

type eventRequest struct {
	EventName string  `json:"event_name"`
	Reason    *string `json:"reason"`
	Timestamp string  `json:"timestamp"`
}

type heartbeatRequest struct {
	PhoneNumbers []string `json:"phone_numbers"`
	Charging     bool     `json:"charging"`
}

type phoneRequest struct {
	PhoneNumber string `json:"phone_number"`
	SIM         string `json:"sim"`
	FcmToken    string `json:"fcm_token"`
}
