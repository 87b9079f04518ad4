package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/CK6170/canbridge-go/can"
	"github.com/CK6170/canbridge-go/models"
)

func rawFrame(t *testing.T, id uint16, value uint16) can.Frame {
	t.Helper()
	var p [2]byte
	binary.LittleEndian.PutUint16(p[:], value)
	f, err := can.New(id, p[:])
	if err != nil {
		t.Fatalf("can.New: %v", err)
	}
	return f
}

func TestDispatchRawSampleModeAware(t *testing.T) {
	cases := []struct {
		name  string
		mode  models.SamplingMode
		value uint16
		want  int32
	}{
		{"internal positive", models.ModeInternal, 1234, 1234},
		{"internal high bit stays unsigned", models.ModeInternal, 0x8000, 32768},
		{"external positive", models.ModeExternal, 1234, 1234},
		{"external negative", models.ModeExternal, 0xFFFF, -1},
		{"external min", models.ModeExternal, 0x8000, -32768},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			hub := NewHub()
			d := NewDispatcher(hub)
			d.SetSamplingMode(c.mode)

			var got models.RawSample
			d.SetOnRawSample(func(s models.RawSample) { got = s })

			d.Dispatch(rawFrame(t, IDRawSampleLeft, c.value))
			if got.Value != c.want {
				t.Errorf("decoded %d, want %d", got.Value, c.want)
			}
			if got.Side != models.Left {
				t.Errorf("side = %s, want LEFT", got.Side)
			}
		})
	}
}

func TestDispatchRawSampleSides(t *testing.T) {
	hub := NewHub()
	d := NewDispatcher(hub)
	sub := hub.Raw.Subscribe(4)

	d.Dispatch(rawFrame(t, IDRawSampleLeft, 100))
	d.Dispatch(rawFrame(t, IDRawSampleRight, 200))

	first := <-sub
	second := <-sub
	if first.Side != models.Left || first.Value != 100 {
		t.Errorf("first = %+v", first)
	}
	if second.Side != models.Right || second.Value != 200 {
		t.Errorf("second = %+v", second)
	}
}

func TestDispatchStatusAndVersion(t *testing.T) {
	hub := NewHub()
	d := NewDispatcher(hub)
	status := hub.Status.Subscribe(1)
	version := hub.Version.Subscribe(1)

	f, _ := can.New(IDStatusResponse, []byte{0x01, 0x02, byte(models.ModeExternal)})
	d.Dispatch(f)
	st := <-status
	if st.System != 0x01 || st.ErrorFlags != 0x02 || st.Mode != models.ModeExternal {
		t.Errorf("status = %+v", st)
	}

	f, _ = can.New(IDVersionResponse, []byte{2, 4, 0, 17})
	d.Dispatch(f)
	v := <-version
	if v.String() != "2.4.0+17" {
		t.Errorf("version = %s", v)
	}
}

func TestDispatchDropsMalformedPayloads(t *testing.T) {
	hub := NewHub()
	d := NewDispatcher(hub)
	status := hub.Status.Subscribe(1)
	raw := hub.Raw.Subscribe(1)

	// Wrong lengths must be dropped, not decoded.
	f, _ := can.New(IDStatusResponse, []byte{0x01})
	d.Dispatch(f)
	f, _ = can.New(IDRawSampleLeft, []byte{0x01})
	d.Dispatch(f)

	select {
	case st := <-status:
		t.Errorf("short status decoded: %+v", st)
	default:
	}
	select {
	case s := <-raw:
		t.Errorf("short raw sample decoded: %+v", s)
	default:
	}
}

func TestDispatchCountsUnknownIDs(t *testing.T) {
	hub := NewHub()
	d := NewDispatcher(hub)

	f, _ := can.New(0x300, []byte{1, 2})
	d.Dispatch(f)
	d.Dispatch(f)
	if got := d.UnknownFrames(); got != 2 {
		t.Errorf("UnknownFrames = %d, want 2", got)
	}
}

func TestObservedStreamSeesBothDirections(t *testing.T) {
	hub := NewHub()
	d := NewDispatcher(hub)
	sub := hub.Frames.Subscribe(4)

	d.Dispatch(rawFrame(t, IDRawSampleLeft, 1))
	if _, err := d.EncodeRequestStatus(); err != nil {
		t.Fatalf("EncodeRequestStatus: %v", err)
	}

	rx := <-sub
	tx := <-sub
	if rx.Direction != can.Received {
		t.Errorf("first observed direction = %s, want RX", rx.Direction)
	}
	if tx.Direction != can.Sent || tx.ID != IDStatusRequest {
		t.Errorf("second observed = %s 0x%03X", tx.Direction, tx.ID)
	}
}

func TestTopicSubscriberIsolation(t *testing.T) {
	var topic Topic[int]
	fast := topic.Subscribe(4)
	slow := topic.Subscribe(1)

	topic.publish(1)
	topic.publish(2) // slow subscriber's buffer is full; it misses this one

	if got := <-fast; got != 1 {
		t.Errorf("fast first = %d", got)
	}
	if got := <-fast; got != 2 {
		t.Errorf("fast second = %d", got)
	}
	if got := <-slow; got != 1 {
		t.Errorf("slow first = %d", got)
	}
	select {
	case v := <-slow:
		t.Errorf("slow got dropped message %d", v)
	default:
	}
}

func TestTopicUnsubscribeCloses(t *testing.T) {
	var topic Topic[int]
	sub := topic.Subscribe(1)
	topic.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Error("unsubscribed channel not closed")
	}
	// Publishing after unsubscribe must not panic.
	topic.publish(7)
}
