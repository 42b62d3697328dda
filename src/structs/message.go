package structs

// Represent a message sent in a channel within Discord.
// https://discord.com/developers/docs/resources/message

type Message struct {
	ID              string `json:"id"`
	ChannelID       string `json:"channel_id"`
	Author          User   `json:"author"`
	Content         string `json:"content"`
	Timestamp       string `json:"timestamp"`
	EditedTimestamp string `json:"edited_timestamp,omitempty"`
	TTS             bool   `json:"tts"`
	MentionEveryone bool   `json:"mention_everyone"`
	Nonce           any    `json:"nonce,omitempty"`
	Type            int    `json:"type"`
	Embeds          any    `json:"embeds,omitempty"` // unimplemented
	Pinned          bool   `json:"pinned"`
	WebhookID       string `json:"webhook_id,omitempty"`
	Flags           int    `json:"flags,omitempty"`
}
