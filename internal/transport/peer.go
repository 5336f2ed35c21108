package transport

import (
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcall/internal/util"
)

var logger = util.NewLogger("transport")

// newAPI builds a pion API with the default codecs and interceptors, logging
// through the application logger.
func newAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, err
	}

	s := webrtc.SettingEngine{LoggerFactory: util.PionLoggerFactory{}}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(s),
	), nil
}

// newPeerConnection creates a PeerConnection gathering candidates against
// the given STUN servers. An empty list gathers host candidates only.
func newPeerConnection(api *webrtc.API, iceServers []string) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return api.NewPeerConnection(config)
}

// addReceivers adds receive-only audio and video transceivers so the offer
// carries both media sections. Capture is handled outside this package.
func addReceivers(pc *webrtc.PeerConnection) error {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		_, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
