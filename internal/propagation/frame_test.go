package propagation

import (
	"testing"

	"github.com/tablefabric/vtable/internal/value"
)

func TestVpiClassify(t *testing.T) {
	cases := []struct {
		name string
		vp   Vpi
		want VpiClass
	}{
		{"registration", Vpi{ID: 3, Name: "x"}, VpiRegistration},
		{"add-request", Vpi{ID: 0, Name: "x"}, VpiAddRequest},
		{"normal-update", Vpi{ID: 3, Name: ""}, VpiNormalUpdate},
		{"invalid", Vpi{ID: 0, Name: ""}, VpiInvalid},
	}
	for _, c := range cases {
		if got := c.vp.Classify(); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestFrameSignalsConnected(t *testing.T) {
	if !(Frame{Seq: 1}.SignalsConnected()) {
		t.Fatalf("a frame with no vpis must signal connected")
	}
	if (Frame{Seq: 1, Vpis: []Vpi{{ID: 1, Name: "x"}}}).SignalsConnected() {
		t.Fatalf("a frame carrying a named vpi must not signal connected")
	}
}

func TestFrameIsEmpty(t *testing.T) {
	if !(Frame{AckSeq: 4}.IsEmpty()) {
		t.Fatalf("a frame with only an ack must be empty")
	}
	if (Frame{Vpis: []Vpi{{ID: 1, Name: "x"}}}).IsEmpty() {
		t.Fatalf("a frame carrying a vpi must not be empty")
	}
}

func TestWireFrameRoundTrip(t *testing.T) {
	f := Frame{
		AckSeq: 3,
		Seq:    4,
		Vpis: []Vpi{
			{ID: 1, Name: "temp", Container: value.I32(72), HasContainer: true},
			{ID: 2, Container: value.Empty(), HasContainer: false},
		},
		Requests: []ActionRequest{{UUID: "u1", ServiceName: "svc", Params: []value.NamedValue{{Name: "p", Value: value.String("v")}}}},
		Updates:  []ActionUpdate{{UUID: "u1", State: ActionState{Terminal: true, ResultCode: ActionSucceeded, Results: []value.NamedValue{{Name: "r", Value: value.Bool(true)}}}}},
	}

	wf, err := ToWire(f)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	back, err := FromWire(wf)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	if back.AckSeq != f.AckSeq || back.Seq != f.Seq {
		t.Fatalf("ack/seq did not round-trip: got %+v", back)
	}
	if len(back.Vpis) != 2 || back.Vpis[0].Name != "temp" || back.Vpis[0].Container.Int64() != 72 {
		t.Fatalf("vpis did not round-trip: %+v", back.Vpis)
	}
	if len(back.Requests) != 1 || back.Requests[0].Params[0].Value.String() != "v" {
		t.Fatalf("requests did not round-trip: %+v", back.Requests)
	}
	if len(back.Updates) != 1 || !back.Updates[0].State.Results[0].Value.Bool() {
		t.Fatalf("updates did not round-trip: %+v", back.Updates)
	}
}

func TestEncodeValueRejectsObjectKind(t *testing.T) {
	_, err := EncodeValue(value.Object(struct{ X int }{1}))
	if err == nil {
		t.Fatalf("expected an error encoding a KindObject value onto the wire")
	}
}
