package websocket

import "time"

// Config holds upstream WebSocket dialer configuration
type Config struct {
	// Connection settings
	HandshakeTimeout  time.Duration `yaml:"handshakeTimeout"`
	ConnectionTimeout time.Duration `yaml:"connectionTimeout"`

	// Buffer settings
	ReadBufferSize  int `yaml:"readBufferSize"`
	WriteBufferSize int `yaml:"writeBufferSize"`

	// Message settings
	MaxMessageSize int64 `yaml:"maxMessageSize"`

	// Compression
	EnableCompression bool `yaml:"enableCompression"`
}
