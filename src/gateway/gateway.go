package gateway

import (
	"errors"
)

// https://discord.com/developers/docs/events/gateway#message-content-intent
type GatewayIntent = int

const (
	GuildsIntent                      GatewayIntent = 1 << 0
	GuildMembersIntent                GatewayIntent = 1 << 1
	GuildModerationIntent             GatewayIntent = 1 << 2
	GuildExpressionIntent             GatewayIntent = 1 << 3
	GuildIntegrationsIntent           GatewayIntent = 1 << 4
	GuildWebhooksIntent               GatewayIntent = 1 << 5
	GuildInvitesIntent                GatewayIntent = 1 << 6
	GuildVoiceStatesIntent            GatewayIntent = 1 << 7
	GuildPresencesIntent              GatewayIntent = 1 << 8
	GuildMessagesIntent               GatewayIntent = 1 << 9
	GuildMessageReactionIntent        GatewayIntent = 1 << 10
	GuildMessageTypingIntent          GatewayIntent = 1 << 11
	DirectMessageIntent               GatewayIntent = 1 << 12
	DirectMessageReactionIntent       GatewayIntent = 1 << 13
	DirectMessageTypingIntent         GatewayIntent = 1 << 14
	MessageContentIntent              GatewayIntent = 1 << 15
	GuildScheduledEventsIntent        GatewayIntent = 1 << 16
	AutoModerationConfigurationIntent GatewayIntent = 1 << 20
	AutoModerationExecutionIntent     GatewayIntent = 1 << 21
	GuildMessagePollsIntent           GatewayIntent = 1 << 24
	DirectMessagePollsIntent          GatewayIntent = 1 << 25
)

// Intents combines intent bits into the identify bitmask.
func Intents(intents ...GatewayIntent) int {
	var mask int
	for _, v := range intents {
		mask |= v
	}
	return mask
}

type GatewayOpcode = int

const (
	OpcodeDispatch       GatewayOpcode = 0
	OpcodeHeartbeat      GatewayOpcode = 1
	OpcodeIdentify       GatewayOpcode = 2
	OpcodeResume         GatewayOpcode = 6
	OpcodeReconnect      GatewayOpcode = 7
	OpcodeInvalidSession GatewayOpcode = 9
	OpcodeHello          GatewayOpcode = 10
	OpcodeHeartbeatAck   GatewayOpcode = 11
)

const (
	DefaultVersion  = 10
	DefaultEncoding = "json"
)

var (
	ErrNoSession            = errors.New("gateway: no session to resume")
	ErrNotConnected         = errors.New("gateway: not connected")
	ErrGatewayIsAlreadyOpen = errors.New("gateway: gateway is already open")
	ErrUnsupportedEncoding  = errors.New("gateway: only json encoding is supported")

	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrDecode               = errors.New("invalid payload")
	ErrInvalidIntents       = errors.New("invalid intents")
	ErrDisallowedIntents    = errors.New("disallowed intent. you may have tried to specify an intent that you have not enabled")
	ErrInvalidAPIVersion    = errors.New("invalid api version")
)
