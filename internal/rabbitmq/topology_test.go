package rabbitmq

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeTopology(t *testing.T) {
	t.Run("declares one queue per direction", func(t *testing.T) {
		topo := BridgeTopology("nativebridge", "nativebridge.to-native", "nativebridge.from-native", 0)

		require.Len(t, topo.Exchanges, 1)
		assert.Equal(t, amqp.ExchangeDirect, topo.Exchanges[0].Type)
		require.Len(t, topo.Queues, 2)
		assert.Nil(t, topo.Queues[0].Arguments)
		assert.Equal(t, []Binding{
			{Queue: "nativebridge.to-native", Exchange: "nativebridge", RoutingKey: "nativebridge.to-native"},
			{Queue: "nativebridge.from-native", Exchange: "nativebridge", RoutingKey: "nativebridge.from-native"},
		}, topo.Bindings)
		assert.NoError(t, topo.Validate())
	})

	t.Run("ttl becomes a queue argument", func(t *testing.T) {
		topo := BridgeTopology("x", "a", "b", 30*time.Second)
		for _, q := range topo.Queues {
			assert.Equal(t, int64(30000), q.Arguments["x-message-ttl"])
		}
	})
}

func TestTopologyValidate(t *testing.T) {
	tests := []struct {
		name string
		topo Topology
	}{
		{"unnamed exchange", Topology{Exchanges: []ExchangeDeclaration{{}}}},
		{"unnamed queue", Topology{Queues: []QueueDeclaration{{}}}},
		{"binding to unknown exchange", Topology{
			Queues:   []QueueDeclaration{{Name: "q"}},
			Bindings: []Binding{{Queue: "q", Exchange: "missing"}},
		}},
		{"binding of unknown queue", Topology{
			Exchanges: []ExchangeDeclaration{{Name: "x"}},
			Bindings:  []Binding{{Queue: "missing", Exchange: "x"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.topo.Validate(), ErrInvalidTopology)
		})
	}

	t.Run("DeclareTopology validates before touching the broker", func(t *testing.T) {
		cm := NewConnectionManager("amqp://localhost:5672/")
		err := DeclareTopology(context.Background(), cm, tests[2].topo)
		assert.ErrorIs(t, err, ErrInvalidTopology)
	})

	t.Run("DeclareTopology needs a connection", func(t *testing.T) {
		cm := NewConnectionManager("amqp://localhost:5672/")
		err := DeclareTopology(context.Background(), cm, BridgeTopology("x", "a", "b", 0))
		assert.ErrorIs(t, err, ErrConnectionNotReady)
	})
}
