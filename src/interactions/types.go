package interactions

type InteractionType = uint8

const (
	InteractionTypePing                           InteractionType = 1
	InteractionTypeApplicationCommand             InteractionType = 2
	InteractionTypeMessageComponent               InteractionType = 3
	InteractionTypeApplicationCommandAutocomplete InteractionType = 4
	InteractionTypeModalSubmit                    InteractionType = 5
)

type ApplicationCommandData struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     uint   `json:"type"`
	GuildID  string `json:"guild_id,omitempty"`
	TargetID string `json:"target_id,omitempty"`
}

// Interaction is the INTERACTION_CREATE payload. Only the fields needed to
// answer it are decoded.
type Interaction struct {
	ID            string                 `json:"id"`
	ApplicationID string                 `json:"application_id"`
	Type          InteractionType        `json:"type"`
	Data          ApplicationCommandData `json:"data,omitempty"`
	GuildID       string                 `json:"guild_id,omitempty"`
	ChannelID     string                 `json:"channel_id,omitempty"`
	Token         string                 `json:"token"`
	Version       uint                   `json:"version"`
	Locale        string                 `json:"locale,omitempty"`
}

type ResponseType = uint

const (
	ResponseTypePong                             ResponseType = 1
	ResponseTypeChannelMessageWithSource         ResponseType = 4
	ResponseTypeDeferredChannelMessageWithSource ResponseType = 5
	ResponseTypeDeferredUpdateMessage            ResponseType = 6
	ResponseTypeUpdateMessage                    ResponseType = 7
	ResponseTypeAutocompleteResult               ResponseType = 8
	ResponseTypeModal                            ResponseType = 9
)

// MessageFlagEphemeral hides the reply from everyone but the invoking user.
const MessageFlagEphemeral uint = 1 << 6

type ResponseMessage struct {
	Tts             bool   `json:"tts,omitempty"`
	Content         string `json:"content,omitempty"`
	Flags           uint   `json:"flags,omitempty"`
	Embeds          any    `json:"embeds,omitempty"`           // unimplemented.
	AllowedMentions any    `json:"allowed_mentions,omitempty"` // unimplemented.
	Components      any    `json:"components,omitempty"`       // unimplemented.
}

type Response struct {
	Type ResponseType     `json:"type"`
	Data *ResponseMessage `json:"data,omitempty"`
}

type CommandType = uint8

const (
	CommandTypeChatInput CommandType = 1
	CommandTypeUser      CommandType = 2
	CommandTypeMessage   CommandType = 3
)

type IntegrationType = uint8

const (
	IntegrationTypeGuildInstall IntegrationType = 0
	IntegrationTypeUserInstall  IntegrationType = 1
)

type ContextType = uint8

const (
	ContextTypeGuild          ContextType = 0
	ContextTypeBotDM          ContextType = 1
	ContextTypePrivateChannel ContextType = 2
)

type OptionType = uint8

const (
	OptionTypeSubCommand      OptionType = 1
	OptionTypeSubCommandGroup OptionType = 2
	OptionTypeString          OptionType = 3
	OptionTypeInteger         OptionType = 4
	OptionTypeBoolean         OptionType = 5
	OptionTypeUser            OptionType = 6
	OptionTypeChannel         OptionType = 7
	OptionTypeRole            OptionType = 8
	OptionTypeMentionable     OptionType = 9
	OptionTypeNumber          OptionType = 10
	OptionTypeAttachment      OptionType = 11
)

type OptionChoice struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// CommandOption is a command parameter. The value bounds apply to integer
// and number options, the length bounds to strings.
type CommandOption struct {
	Type         OptionType      `json:"type"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Required     bool            `json:"required,omitempty"`
	Choices      []OptionChoice  `json:"choices,omitempty"`
	Options      []CommandOption `json:"options,omitempty"`
	ChannelTypes []int           `json:"channel_types,omitempty"`
	MinValue     *float64        `json:"min_value,omitempty"`
	MaxValue     *float64        `json:"max_value,omitempty"`
	MinLength    *int            `json:"min_length,omitempty"`
	MaxLength    *int            `json:"max_length,omitempty"`
	Autocomplete bool            `json:"autocomplete,omitempty"`
}

type Command struct {
	ID               string            `json:"id,omitempty"`
	Type             CommandType       `json:"type,omitempty"`
	ApplicationID    string            `json:"application_id,omitempty"`
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	Options          []CommandOption   `json:"options,omitempty"`
	IntegrationTypes []IntegrationType `json:"integration_types,omitempty"`
	Contexts         []ContextType     `json:"contexts,omitempty"`
	Nsfw             bool              `json:"nsfw,omitempty"`
	Version          string            `json:"version,omitempty"`
}

// PingCommand is the chat command the bot answers out of the box.
var PingCommand = Command{
	Name:             "ping",
	Description:      "Check that the bot is alive",
	Type:             CommandTypeChatInput,
	IntegrationTypes: []IntegrationType{IntegrationTypeGuildInstall, IntegrationTypeUserInstall},
	Contexts:         []ContextType{ContextTypeGuild, ContextTypeBotDM, ContextTypePrivateChannel},
}
