package redisstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerGroup(t *testing.T) {
	require.Equal(t, "smartsql-chat-ui-forward", HandlerGroup("smartsql-chat", "ui-forward"))
	require.Equal(t, "base-debug-raw", HandlerGroup("base", "debug-raw"))
}

func TestHandlerOptions_DisabledNeedsNoRedis(t *testing.T) {
	// the address is never dialed while the transport is disabled
	s := Settings{Enabled: false, Addr: "127.0.0.1:1", Group: "g", Consumer: "c"}
	opts, err := HandlerOptions(context.Background(), s, "transcript", "ui-forward")
	require.NoError(t, err)
	require.Nil(t, opts)
}

func TestBuildRouter_DisabledUsesInProcessTransport(t *testing.T) {
	router, err := BuildRouter(Settings{Enabled: false}, false)
	require.NoError(t, err)
	require.NotNil(t, router)
	require.NotNil(t, router.Publisher)
	require.Same(t, router.Publisher, router.Subscriber)
	require.NoError(t, router.Close())
}

func TestNewSection(t *testing.T) {
	s, err := NewSection()
	require.NoError(t, err)
	require.Equal(t, SectionSlug, s.GetSlug())
}
