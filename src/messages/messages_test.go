package message

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hendrywilliam/sirengate/src/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeREST struct {
	rest.RESTClient
	path    string
	body    any
	options *rest.RESTOptions
	reply   string
	err     error
}

func (f *fakeREST) Post(ctx context.Context, path string, body any, options *rest.RESTOptions) (json.RawMessage, error) {
	f.path = path
	f.body = body
	f.options = options
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.reply), nil
}

func TestCreateMessage(t *testing.T) {
	f := &fakeREST{reply: `{"id":"99","channel_id":"123","content":"hello","author":{"id":"1","username":"siren"}}`}
	api := New(f)

	msg, err := api.CreateMessage(context.Background(), "123", CreateMessageOptions{
		Data:   CreateMessageData{Content: "hello"},
		Reason: "greeting",
	})
	require.NoError(t, err)
	assert.Equal(t, "/channels/123/messages", f.path)
	assert.Equal(t, CreateMessageData{Content: "hello"}, f.body)
	require.NotNil(t, f.options)
	assert.Equal(t, "greeting", f.options.Reason)

	assert.Equal(t, "99", msg.ID)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "siren", msg.Author.Username)
}

func TestCreateMessageValidation(t *testing.T) {
	f := &fakeREST{}
	api := New(f)

	_, err := api.CreateMessage(context.Background(), "123", CreateMessageOptions{})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = api.CreateMessage(context.Background(), "", CreateMessageOptions{Data: CreateMessageData{Content: "x"}})
	assert.Error(t, err)
	assert.Empty(t, f.path, "nothing is sent for invalid input")
}

func TestCreateMessageEngineError(t *testing.T) {
	f := &fakeREST{err: &rest.HTTPError{Status: 403, Reason: "Forbidden"}}
	_, err := New(f).CreateMessage(context.Background(), "123", CreateMessageOptions{Data: CreateMessageData{Content: "x"}})

	var httpErr *rest.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 403, httpErr.Status)
}
