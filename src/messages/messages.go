package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/hendrywilliam/sirengate/src/rest"
	"github.com/hendrywilliam/sirengate/src/structs"
)

var ErrEmptyMessage = errors.New("message: content is empty")

// Messages API.
// Provide methods to interact with "Messages" event struct.
// Source: https://discord.com/developers/docs/resources/message
type MessageAPI struct {
	rest rest.RESTClient
}

func New(rest rest.RESTClient) *MessageAPI {
	return &MessageAPI{
		rest: rest,
	}
}

// Routes
func createMessageRoute(channelID string) string {
	return fmt.Sprintf("/channels/%s/messages", url.PathEscape(channelID))
}

type CreateMessageData struct {
	Content          string `json:"content"`
	Tts              bool   `json:"tts"`
	Nonce            any    `json:"nonce,omitempty"`             // Use nonce to verify a message was sent.
	Embeds           any    `json:"embeds,omitempty"`            // unimplemented
	AllowedMentions  any    `json:"allowed_mentions,omitempty"`  // unimplemented
	MessageReference any    `json:"message_reference,omitempty"` // unimplemented
	Components       any    `json:"components,omitempty"`        // unimplemented
	StickerIDS       any    `json:"sticker_ids,omitempty"`       // unimplemented
}

type CreateMessageOptions struct {
	Data CreateMessageData
	// Reason ends up in the audit log.
	Reason string
}

func (m *MessageAPI) CreateMessage(ctx context.Context, channelID string, options CreateMessageOptions) (*structs.Message, error) {
	if channelID == "" {
		return nil, fmt.Errorf("message: channel id is empty")
	}
	if options.Data.Content == "" {
		return nil, ErrEmptyMessage
	}
	var restOpts *rest.RESTOptions
	if options.Reason != "" {
		restOpts = &rest.RESTOptions{Reason: options.Reason}
	}
	b, err := m.rest.Post(ctx, createMessageRoute(channelID), options.Data, restOpts)
	if err != nil {
		return nil, err
	}
	msg := &structs.Message{}
	if err := json.Unmarshal(b, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
