package transport

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/rtcall/internal/negotiation"
)

var _ negotiation.Engine = (*Transport)(nil)

func newTestTransport(t *testing.T) (*Transport, chan webrtc.SessionDescription) {
	t.Helper()

	tr, err := NewTransport(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })

	descs := make(chan webrtc.SessionDescription, 1)
	tr.OnLocalDescription(func(d webrtc.SessionDescription) { descs <- d })
	return tr, descs
}

func nextDescription(t *testing.T, descs <-chan webrtc.SessionDescription) webrtc.SessionDescription {
	t.Helper()
	select {
	case d := <-descs:
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("description not delivered")
		return webrtc.SessionDescription{}
	}
}

func TestTransportLoopbackNegotiation(t *testing.T) {
	offerer, offers := newTestTransport(t)
	answerer, answers := newTestTransport(t)

	require.NoError(t, offerer.CreateOffer())
	offer := nextDescription(t, offers)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.True(t, strings.Contains(offer.SDP, "m=audio"), "offer has no audio section")
	assert.True(t, strings.Contains(offer.SDP, "m=video"), "offer has no video section")

	require.NoError(t, offerer.SetLocalDescription(offer))
	require.NoError(t, answerer.SetRemoteDescription(offer))

	require.NoError(t, answerer.CreateAnswer())
	answer := nextDescription(t, answers)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)

	require.NoError(t, answerer.SetLocalDescription(answer))
	require.NoError(t, offerer.SetRemoteDescription(answer))
}

func TestTransportCreateOfferTwice(t *testing.T) {
	tr, offers := newTestTransport(t)

	require.NoError(t, tr.CreateOffer())
	first := nextDescription(t, offers)
	require.NoError(t, tr.CreateOffer())
	second := nextDescription(t, offers)

	assert.Equal(t, 1, strings.Count(second.SDP, "m=audio"))
	assert.Equal(t, strings.Count(first.SDP, "m=video"), strings.Count(second.SDP, "m=video"))
}

func TestTransportCreateAnswerWithoutOffer(t *testing.T) {
	tr, _ := newTestTransport(t)
	assert.Error(t, tr.CreateAnswer())
}

func TestTransportRejectsGarbage(t *testing.T) {
	tr, _ := newTestTransport(t)
	assert.Error(t, tr.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "garbage"}))
}

func TestTransportCloseEndsDone(t *testing.T) {
	tr, err := NewTransport(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	select {
	case <-tr.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done not closed")
	}
}
