// Package whatsapp implements the WhatsApp front channel on top of
// whatsmeow: a multi-device WhatsApp client that requires a one-time QR
// pairing handshake, after which its session persists in the session
// database across restarts.
package whatsapp

// Config holds the WhatsApp adapter's configuration.
type Config struct {
	// SessionPath is the embedded database file whatsmeow persists its
	// paired-device session to.
	SessionPath string
	// Model is the LLM model assigned to conversations created from this channel.
	Model string
}
