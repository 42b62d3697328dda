// Package interactions answers application command interactions and
// registers commands through the rate limited REST client.
// Source: https://discord.com/developers/docs/interactions/receiving-and-responding
package interactions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/hendrywilliam/sirengate/src/rest"
	"github.com/hendrywilliam/sirengate/src/structs"
)

var ErrMissingInteraction = errors.New("interactions: interaction id and token are required")

type InteractionAPI struct {
	rest rest.RESTClient
}

func New(rest rest.RESTClient) *InteractionAPI {
	return &InteractionAPI{rest: rest}
}

// Routes
func callbackRoute(interactionID, interactionToken string) string {
	return fmt.Sprintf("/interactions/%s/%s/callback", url.PathEscape(interactionID), url.PathEscape(interactionToken))
}

func originalRoute(applicationID, interactionToken string) string {
	return fmt.Sprintf("/webhooks/%s/%s/messages/@original", url.PathEscape(applicationID), url.PathEscape(interactionToken))
}

func commandsRoute(applicationID string) string {
	return fmt.Sprintf("/applications/%s/commands", url.PathEscape(applicationID))
}

type ReplyOptions struct {
	Response Response
	// WithResponse asks Discord to return the created callback resource.
	WithResponse bool
}

// Reply answers the interaction. The returned payload is empty unless
// WithResponse is set.
func (i *InteractionAPI) Reply(ctx context.Context, interactionID, interactionToken string, options ReplyOptions) (json.RawMessage, error) {
	if interactionID == "" || interactionToken == "" {
		return nil, ErrMissingInteraction
	}
	var restOpts *rest.RESTOptions
	if options.WithResponse {
		restOpts = &rest.RESTOptions{Query: url.Values{"with_response": {"true"}}}
	}
	return i.rest.Post(ctx, callbackRoute(interactionID, interactionToken), options.Response, restOpts)
}

type GetOriginalOptions struct {
	ThreadID string
}

func (i *InteractionAPI) GetOriginal(ctx context.Context, applicationID, interactionToken string, options GetOriginalOptions) (*structs.Message, error) {
	var restOpts *rest.RESTOptions
	if options.ThreadID != "" {
		restOpts = &rest.RESTOptions{Query: url.Values{"thread_id": {options.ThreadID}}}
	}
	b, err := i.rest.Get(ctx, originalRoute(applicationID, interactionToken), restOpts)
	if err != nil {
		return nil, err
	}
	msg := &structs.Message{}
	if err := json.Unmarshal(b, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (i *InteractionAPI) DeleteOriginal(ctx context.Context, applicationID, interactionToken string) error {
	_, err := i.rest.Delete(ctx, originalRoute(applicationID, interactionToken), nil)
	return err
}

// RegisterCommands overwrites the application's global commands with cmds.
func (i *InteractionAPI) RegisterCommands(ctx context.Context, applicationID string, cmds []Command) ([]Command, error) {
	if applicationID == "" {
		return nil, errors.New("interactions: application id is empty")
	}
	if cmds == nil {
		cmds = []Command{}
	}
	b, err := i.rest.Put(ctx, commandsRoute(applicationID), cmds, nil)
	if err != nil {
		return nil, err
	}
	var registered []Command
	if len(b) == 0 {
		return registered, nil
	}
	if err := json.Unmarshal(b, &registered); err != nil {
		return nil, err
	}
	return registered, nil
}
