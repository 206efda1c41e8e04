package relay

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/callhub/internal/app"
	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/core/mocks"
	"github.com/dkeye/callhub/internal/domain"
)

var errFull = errors.New("full")

func TestEncode(t *testing.T) {
	frame, err := Encode(domain.EventParticipantJoined, domain.ParticipantJoined{UserID: "u2", RoomID: "r1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"call_participant_joined","data":{"userId":"u2","roomId":"r1"}}`, string(frame))

	frame, err = Encode(domain.EventAudioChunk, domain.AudioChunk{Chunk: []byte(`"AAEC"`), UserID: "a", TS: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"call_audio_chunk","data":{"chunk":"AAEC","userId":"a","ts":5}}`, string(frame))
}

func TestDeliverToEveryTarget(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := mocks.NewMockSignalConnection(ctrl)
	c := mocks.NewMockSignalConnection(ctrl)

	var got []core.Frame
	record := func(f core.Frame) error {
		got = append(got, f)
		return nil
	}
	b.EXPECT().TrySend(gomock.Any()).DoAndReturn(record).Times(1)
	c.EXPECT().TrySend(gomock.Any()).DoAndReturn(record).Times(1)

	f := NewFanout(nil)
	f.Attach("B", b)
	f.Attach("C", c)

	res := f.Deliver(core.Delivery{
		To:      []core.ConnID{"B", "C", "gone"},
		Event:   domain.EventPeerReady,
		Payload: domain.PeerReady{UserID: "a"},
	})
	assert.Equal(t, 2, res.SendTo)
	assert.Empty(t, res.Dropped)
	require.Len(t, got, 2)
	assert.Equal(t, got[0], got[1], "encoded once, same bytes for everyone")
	assert.JSONEq(t, `{"event":"call_peer_ready","data":{"userId":"a"}}`, string(got[0]))
}

func TestDeliverNoTargets(t *testing.T) {
	f := NewFanout(nil)
	assert.Equal(t, core.PublishResult{}, f.Deliver(core.Delivery{Event: domain.EventPeerReady}))
}

func TestDeliverDetached(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := mocks.NewMockSignalConnection(ctrl)

	f := NewFanout(nil)
	f.Attach("B", b)
	f.Detach("B")
	assert.Equal(t, 0, f.Len())

	res := f.Deliver(core.Delivery{To: []core.ConnID{"B"}, Event: domain.EventPeerReady, Payload: domain.PeerReady{UserID: "a"}})
	assert.Equal(t, 0, res.SendTo)
}

func TestBackpressureDrop(t *testing.T) {
	ctrl := gomock.NewController(t)
	slow := mocks.NewMockSignalConnection(ctrl)
	slow.EXPECT().TrySend(gomock.Any()).Return(errFull)
	slow.EXPECT().Close().Times(0)

	f := NewFanout(app.DropPolicy{})
	f.Attach("S", slow)

	res := f.Deliver(core.Delivery{To: []core.ConnID{"S"}, Event: domain.EventVideoFrame, Payload: domain.VideoFrame{Frame: []byte(`"x"`), UserID: "a"}})
	assert.Equal(t, []core.ConnID{"S"}, res.Dropped)
	assert.Equal(t, 0, res.SendTo)
}

func TestBackpressureKick(t *testing.T) {
	ctrl := gomock.NewController(t)
	slow := mocks.NewMockSignalConnection(ctrl)
	fast := mocks.NewMockSignalConnection(ctrl)
	slow.EXPECT().TrySend(gomock.Any()).Return(errFull)
	slow.EXPECT().Close().Times(1)
	fast.EXPECT().TrySend(gomock.Any()).Return(nil)

	f := NewFanout(app.KickPolicy{})
	f.Attach("S", slow)
	f.Attach("F", fast)

	res := f.Deliver(core.Delivery{To: []core.ConnID{"S", "F"}, Event: domain.EventAudioChunk, Payload: domain.AudioChunk{Chunk: []byte(`"x"`), UserID: "a"}})
	assert.Equal(t, 1, res.SendTo)
	assert.Equal(t, []core.ConnID{"S"}, res.Dropped)
}

func TestDeliverAll(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mocks.NewMockSignalConnection(ctrl)
	a.EXPECT().TrySend(gomock.Any()).Return(nil).Times(2)

	f := NewFanout(nil)
	f.Attach("A", a)
	f.DeliverAll([]core.Delivery{
		{To: []core.ConnID{"A"}, Event: domain.EventParticipantLeft, Payload: domain.ParticipantLeft{UserID: "x"}},
		{To: []core.ConnID{"A"}, Event: domain.EventParticipantLeft, Payload: domain.ParticipantLeft{UserID: "y"}},
	})
}
