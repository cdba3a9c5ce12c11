package settings

// 持久化设置键，内存与数据库实现共用。
const (
	keyAPIKey          = "API_KEY"
	keyServerURL       = "SERVER_URL"
	keyUserID          = "USER_ID"
	keyFcmToken        = "FCM_TOKEN"
	keyEncryptionKey   = "ENCRYPTION_KEY"
	keyEncryptReceived = "ENCRYPT_RECEIVED_MESSAGES"
	keyHeartbeatAt     = "HEARTBEAT_TIMESTAMP"
)

func keyPhoneNumber(sim string) string       { return sim + "_PHONE_NUMBER" }
func keyActiveStatus(sim string) string      { return sim + "_ACTIVE_STATUS" }
func keyIncomingEnabled(sim string) string   { return sim + "_INCOMING_ACTIVE" }
func keyCallEventsEnabled(sim string) string { return sim + "_INCOMING_CALL_EVENTS" }
