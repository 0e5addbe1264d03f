package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_RoutingKey(t *testing.T) {
	t.Run("message routes by type", func(t *testing.T) {
		key, err := Event{Type: "message"}.RoutingKey()
		require.NoError(t, err)
		assert.Equal(t, "message", key)
	})

	t.Run("command routes by name", func(t *testing.T) {
		key, err := Event{Type: EventTypeCommand, Command: "/ask"}.RoutingKey()
		require.NoError(t, err)
		assert.Equal(t, "/ask", key)
	})

	t.Run("interactive routes by action id", func(t *testing.T) {
		key, err := Event{Type: EventTypeBlockActions, ActionID: "approve"}.RoutingKey()
		require.NoError(t, err)
		assert.Equal(t, "approve", key)
	})

	t.Run("command without name is malformed", func(t *testing.T) {
		_, err := Event{Type: EventTypeCommand}.RoutingKey()

		var malformedErr *MalformedEventError

		require.ErrorAs(t, err, &malformedErr)
	})

	t.Run("interactive without action id is malformed", func(t *testing.T) {
		_, err := Event{Type: EventTypeInteractive}.RoutingKey()

		var malformedErr *MalformedEventError

		require.ErrorAs(t, err, &malformedErr)
	})

	t.Run("empty type is malformed", func(t *testing.T) {
		_, err := Event{}.RoutingKey()

		var malformedErr *MalformedEventError

		require.ErrorAs(t, err, &malformedErr)
	})
}

func TestRouter_Dispatch(t *testing.T) {
	t.Run("handlers run in registration order with fault isolation", func(t *testing.T) {
		r := New()

		r.Register("message", func(ctx context.Context, ev Event) (any, error) {
			return "first", nil
		})
		r.Register("message", func(ctx context.Context, ev Event) (any, error) {
			return nil, errors.New("second failed")
		})
		r.Register("message", func(ctx context.Context, ev Event) (any, error) {
			return "third", nil
		})

		dispatch, err := r.Dispatch(context.Background(), Event{Type: "message"})
		require.NoError(t, err)

		assert.False(t, dispatch.Unhandled)
		require.Len(t, dispatch.Results, 3)

		assert.Equal(t, "first", dispatch.Results[0].Value)
		require.NoError(t, dispatch.Results[0].Err)

		require.Error(t, dispatch.Results[1].Err)
		assert.Equal(t, 1, dispatch.Results[1].Index)

		assert.Equal(t, "third", dispatch.Results[2].Value)
		require.NoError(t, dispatch.Results[2].Err)
	})

	t.Run("panicking handler becomes its own error entry", func(t *testing.T) {
		r := New()

		r.Register("message", func(ctx context.Context, ev Event) (any, error) {
			panic("bad handler")
		})
		r.Register("message", func(ctx context.Context, ev Event) (any, error) {
			return "survivor", nil
		})

		dispatch, err := r.Dispatch(context.Background(), Event{Type: "message"})
		require.NoError(t, err)
		require.Len(t, dispatch.Results, 2)

		require.Error(t, dispatch.Results[0].Err)
		assert.Contains(t, dispatch.Results[0].Err.Error(), "bad handler")
		assert.Equal(t, "survivor", dispatch.Results[1].Value)
	})

	t.Run("unhandled key is not an error", func(t *testing.T) {
		r := New()

		dispatch, err := r.Dispatch(context.Background(), Event{Type: "app_mention"})
		require.NoError(t, err)

		assert.True(t, dispatch.Unhandled)
		assert.Empty(t, dispatch.Results)
	})

	t.Run("malformed event is rejected before lookup", func(t *testing.T) {
		r := New()

		r.Register("/ask", func(ctx context.Context, ev Event) (any, error) {
			t.Fatal("handler must not run")

			return nil, nil
		})

		_, err := r.Dispatch(context.Background(), Event{Type: EventTypeCommand})

		var malformedErr *MalformedEventError

		require.ErrorAs(t, err, &malformedErr)
	})

	t.Run("bot messages are filtered", func(t *testing.T) {
		r := New(WithFilter(IgnoreBotMessages))

		called := false

		r.Register("message", func(ctx context.Context, ev Event) (any, error) {
			called = true

			return nil, nil
		})

		dispatch, err := r.Dispatch(context.Background(), Event{Type: "message", BotID: "B123"})
		require.NoError(t, err)

		assert.True(t, dispatch.Unhandled)
		assert.False(t, called)

		dispatch, err = r.Dispatch(context.Background(), Event{Type: "message"})
		require.NoError(t, err)

		assert.False(t, dispatch.Unhandled)
		assert.True(t, called)
	})

	t.Run("synthetic verification event answered by ordinary handler", func(t *testing.T) {
		r := New()

		r.Register("url_verification", func(ctx context.Context, ev Event) (any, error) {
			return ev.Body["challenge"], nil
		})

		dispatch, err := r.Dispatch(context.Background(), Event{
			Type: "url_verification",
			Body: map[string]any{"challenge": "abc123"},
		})
		require.NoError(t, err)

		require.Len(t, dispatch.Results, 1)
		assert.Equal(t, "abc123", dispatch.Results[0].Value)
	})
}

func TestRouter_Keys(t *testing.T) {
	r := New()

	r.Register("message", func(ctx context.Context, ev Event) (any, error) { return nil, nil })
	r.Register("/ask", func(ctx context.Context, ev Event) (any, error) { return nil, nil })

	assert.ElementsMatch(t, []string{"message", "/ask"}, r.Keys())
}
