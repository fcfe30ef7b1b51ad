package transport

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/dvector"
	"github.com/vitaliisemenov/timewarp/internal/timewarp/model"
)

func TestClient_Send_ErrorsWhenDestinationUnmapped(t *testing.T) {
	c := NewClient(AddressTable{}, nil, nil)

	err := c.Send(model.Message{To: 1})

	assert.Error(t, err)
}

func TestClient_Send_WritesEnvelopeToDestination(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan Envelope, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, readBufferSize)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(buf[:n], &env); err == nil {
			received <- env
		}
	}()

	addrTable := AddressTable{2: ln.Addr().String()}
	c := NewClient(addrTable, nil, nil)

	err = c.Send(model.Message{ID: 1, From: 1, To: 2, SentTS: 0, ExecTS: 5, Payload: "hi"})
	require.NoError(t, err)

	select {
	case env := <-received:
		assert.Equal(t, model.ComponentId(2), env.Message.To)
		assert.Equal(t, "hi", env.Message.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the envelope")
	}
}

func TestClient_Send_PiggybacksDependencyVectorSnapshot(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan Envelope, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, readBufferSize)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(buf[:n], &env); err == nil {
			received <- env
		}
	}()

	dv := dvector.New(1, []model.ComponentId{2})
	require.NoError(t, dv.SetSelfTimestamp(7))

	c := NewClient(AddressTable{2: ln.Addr().String()}, dv, nil)
	require.NoError(t, c.Send(model.Message{ID: 1, From: 1, To: 2, ExecTS: 1}))

	select {
	case env := <-received:
		assert.Equal(t, model.Timestamp(7), env.DependencyVector[1])
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the envelope")
	}
}

func TestClient_Send_ThrottlesRapidRedialsToSameDestination(t *testing.T) {
	addrTable := AddressTable{2: "127.0.0.1:1"} // closed port: dial fails fast
	c := NewClient(addrTable, nil, nil)

	first := c.Send(model.Message{To: 2})
	require.Error(t, first)

	second := c.Send(model.Message{To: 2})
	require.Error(t, second)
	assert.Contains(t, second.Error(), "throttled")
}
