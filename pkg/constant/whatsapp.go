package constant

const (
	WHATSAPP_LOGGED_OUT    = "WhatsApp session logged out"
	SESSION_RESET          = "New WhatsApp session requested"
	PAIRING_CODE_PENDING   = "Scan this code with the WhatsApp mobile app"
	ALREADY_LINKED         = "WhatsApp session already linked"
	PAIRING_CODE_NOT_READY = "Pairing code not available yet, retry shortly"

	WHATSAPP_NOT_CONNECTED = "WhatsApp client not connected"
	SESSION_NOT_FOUND      = "WhatsApp session not found"
)
