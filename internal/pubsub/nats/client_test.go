package nats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/config"
	"subgraphx/internal/domain"
)

func newTestLogger() logger.Logger {
	return logger.New(lgcfg.LoggerCfg{Level: "error", Format: "json"})
}

func runWithServer(t *testing.T, fn func(t *testing.T, s *server.Server, url string)) {
	t.Helper()

	opts := natsserver.DefaultTestOptions
	opts.Port = -1 // random port
	s := natsserver.RunServer(&opts)
	defer s.Shutdown()

	fn(t, s, s.ClientURL())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(newTestLogger(), nil)
	assert.EqualError(t, err, "nats config is required")

	_, err = New(newTestLogger(), &config.NATSConfig{})
	assert.EqualError(t, err, "nats url is required")
}

func TestPublish_RoundTrip(t *testing.T) {
	runWithServer(t, func(t *testing.T, s *server.Server, url string) {
		client, err := New(newTestLogger(), &config.NATSConfig{URL: url})
		require.NoError(t, err)
		defer client.Close()

		received := make(chan []byte, 1)
		_, err = client.QueueSubscribe("pool.updates", "workers", func(data []byte) {
			received <- data
		})
		require.NoError(t, err)

		patch := domain.EntityPatch{Topic: "pool:0xabc", Kind: "pool", ID: "0xabc"}
		require.NoError(t, client.Publish(context.Background(), "pool.updates", patch))

		select {
		case data := <-received:
			var got domain.EntityPatch
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, "pool:0xabc", got.Topic)
		case <-time.After(2 * time.Second):
			t.Fatal("patch not delivered")
		}
	})
}

func TestPublish_BroadcastPrefix(t *testing.T) {
	runWithServer(t, func(t *testing.T, s *server.Server, url string) {
		client, err := New(newTestLogger(), &config.NATSConfig{URL: url, BroadcastPrefix: "broadcast"})
		require.NoError(t, err)
		defer client.Close()

		raw, err := nats.Connect(url)
		require.NoError(t, err)
		defer raw.Close()

		received := make(chan struct{}, 1)
		_, err = raw.Subscribe("broadcast.protocol:acme", func(*nats.Msg) {
			received <- struct{}{}
		})
		require.NoError(t, err)
		require.NoError(t, raw.Flush())

		require.NoError(t, client.Publish(context.Background(), "protocol:acme", map[string]string{"x": "1"}))

		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatal("prefixed publish not delivered")
		}
	})
}

func TestHealth_And_CloseIdempotent(t *testing.T) {
	runWithServer(t, func(t *testing.T, s *server.Server, url string) {
		client, err := New(newTestLogger(), &config.NATSConfig{URL: url})
		require.NoError(t, err)

		assert.NoError(t, client.Health(context.Background()))
		assert.True(t, client.Ready())
		assert.Equal(t, nats.CONNECTED, client.Status())

		require.NoError(t, client.Close())
		require.NoError(t, client.Close())

		assert.Error(t, client.Health(context.Background()))
		assert.False(t, client.Ready())
	})
}
