package constants

import "time"

const (
	AppName = "kvconsole"
	Version = "0.1.0"
)

// Network defaults
const (
	DefaultPort       = "8080"
	DefaultRedisPort  = 6379
	MinPort           = 1
	MaxPort           = 65535
	DialTimeout       = 10 * time.Second
	ProbeTimeout      = 8 * time.Second
	DialRetryBackoff  = 2 * time.Second
	OperationTimeout  = 5 * time.Second
	HealthInterval    = 30 * time.Second
	HealthPingTimeout = 3 * time.Second
	ShutdownTimeout   = 5 * time.Second
	ProbeReply        = "PONG"
)

// Managed hosting providers that require TLS whatever scheme the URL uses.
var ManagedTLSDomains = []string{"upstash.io"}

// Audit log
const (
	AuditCapacity         = 100
	AuditSubscriberBuffer = 64
)

// Actions recorded in the audit log.
const (
	ActionConnect        = "connect"
	ActionDisconnect     = "disconnect"
	ActionSessionLost    = "session_lost"
	ActionConnectionInfo = "connection-info"
	ActionHistory        = "history"
	ActionKeys           = "keys"
	ActionGetKey         = "get_key"
	ActionUpdateKey      = "update_key"
	ActionDeleteKey      = "delete_key"
	ActionCLI            = "cli"
)

// BlockedCommands are never dispatched by the restricted shell.
var BlockedCommands = []string{
	"flushall",
	"flushdb",
	"config",
	"shutdown",
	"save",
	"bgsave",
	"lastsave",
	"monitor",
}

// Vault
const (
	VaultDriverMemory = "memory"
	VaultDriverSealed = "sealed"
	VaultDriverRedis  = "redis"
	VaultKeyPrefix    = "kvconsole:vault:"
	VaultTTL          = 24 * time.Hour
	VaultOpTimeout    = 2 * time.Second
)

// Rate limiting
const (
	ConnectRatePerMinute  = 30
	MaxConnectFailures    = 10
	ConnectBlockDuration  = 5 * time.Minute
	MaxStreamClientsPerIP = 10
	MaxBodySize           = 4 * 1024 * 1024
)

// Proxies whose forwarding headers are trusted when resolving client IPs.
var DefaultTrustedProxies = []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}

// API endpoints
const (
	EndpointConnect           = "/api/redis/connect"
	EndpointActiveConnections = "/api/redis/active-connections"
	EndpointConnectionInfo    = "/api/redis/connection-info"
	EndpointHistory           = "/api/redis/history"
	EndpointHistoryStream     = "/api/redis/history/stream"
	EndpointKeys              = "/api/redis/keys"
	EndpointKey               = "/api/redis/key/{key}"
	EndpointCLI               = "/api/redis/cli"
	EndpointHealth            = "/healthz"
)

// Dashboard history stream
const (
	DashboardWSReadBuffer  = 1024
	DashboardWSWriteBuffer = 4096
	DashboardWriteTimeout  = 5 * time.Second
	DashboardPingInterval  = 30 * time.Second
)

// Messages
const (
	MsgInvalidJSON          = "Invalid JSON"
	MsgConnectionIDRequired = "Connection ID is required"
	MsgInvalidConnectionID  = "Invalid connection ID"
	MsgCommandRequired      = "Command is required"
	MsgHostRequired         = "Host is required"
	MsgInvalidURL           = "Invalid Redis URL format"
	MsgKeyNotFound          = "Key does not exist"
	MsgKeyRequired          = "Key is required"
	MsgRateLimitExceeded    = "Rate limit exceeded"
	MsgTooManyFailures      = "Too many failed connection attempts, try again later"
	MsgStreamLimitExceeded  = "Too many history streams from this address"
	MsgBodyTooLarge         = "Request body too large"
)
