package propagation

import (
	"fmt"

	"github.com/tablefabric/vtable/internal/value"
)

// WireValue is the JSON-friendly projection of a value.Value, built
// entirely from its exported accessors since its storage fields are
// private. KindObject has no wire form and fails to encode.
type WireValue struct {
	Kind   value.Kind       `json:"kind"`
	IsNull bool             `json:"is_null,omitempty"`
	B      bool             `json:"b,omitempty"`
	I      int64            `json:"i,omitempty"`
	U      uint64           `json:"u,omitempty"`
	F      float64          `json:"f,omitempty"`
	S      string           `json:"s,omitempty"`
	List   []string         `json:"list,omitempty"`
	Cont   *WireValue       `json:"cont,omitempty"`
	NVS    []WireNamedValue `json:"nvs,omitempty"`
}

// WireNamedValue is the wire form of a value.NamedValue.
type WireNamedValue struct {
	Name  string    `json:"name"`
	Value WireValue `json:"value"`
}

// EncodeValue projects v into its wire form.
func EncodeValue(v value.Value) (WireValue, error) {
	w := WireValue{Kind: v.Kind, IsNull: v.IsNull}
	if v.IsNull {
		return w, nil
	}
	switch v.Kind {
	case value.KindEmpty:
	case value.KindBool:
		w.B = v.Bool()
	case value.KindI8, value.KindI16, value.KindI32, value.KindI64:
		w.I = v.Int64()
	case value.KindU8, value.KindU16, value.KindU32, value.KindU64:
		w.U = v.Uint64()
	case value.KindF32, value.KindF64:
		w.F = v.Float64()
	case value.KindString:
		w.S = v.String()
	case value.KindStringList:
		w.List = v.StringList()
	case value.KindContainer:
		inner, err := EncodeValue(v.Inner())
		if err != nil {
			return WireValue{}, err
		}
		w.Cont = &inner
	case value.KindNamedValueSet:
		nvs := v.NamedValues()
		w.NVS = make([]WireNamedValue, len(nvs))
		for i, nv := range nvs {
			ev, err := EncodeValue(nv.Value)
			if err != nil {
				return WireValue{}, err
			}
			w.NVS[i] = WireNamedValue{Name: nv.Name, Value: ev}
		}
	default:
		return WireValue{}, fmt.Errorf("propagation: kind %s has no wire form", v.Kind)
	}
	return w, nil
}

// DecodeValue reconstructs a value.Value from its wire form.
func DecodeValue(w WireValue) (value.Value, error) {
	if w.IsNull {
		return value.NullOf(w.Kind), nil
	}
	switch w.Kind {
	case value.KindEmpty:
		return value.Empty(), nil
	case value.KindBool:
		return value.Bool(w.B), nil
	case value.KindI8:
		return value.I8(int8(w.I)), nil
	case value.KindI16:
		return value.I16(int16(w.I)), nil
	case value.KindI32:
		return value.I32(int32(w.I)), nil
	case value.KindI64:
		return value.I64(w.I), nil
	case value.KindU8:
		return value.U8(uint8(w.U)), nil
	case value.KindU16:
		return value.U16(uint16(w.U)), nil
	case value.KindU32:
		return value.U32(uint32(w.U)), nil
	case value.KindU64:
		return value.U64(w.U), nil
	case value.KindF32:
		return value.F32(float32(w.F)), nil
	case value.KindF64:
		return value.F64(w.F), nil
	case value.KindString:
		return value.String(w.S), nil
	case value.KindStringList:
		return value.StringList(w.List), nil
	case value.KindContainer:
		if w.Cont == nil {
			return value.Container(value.Empty()), nil
		}
		inner, err := DecodeValue(*w.Cont)
		if err != nil {
			return value.Value{}, err
		}
		return value.Container(inner), nil
	case value.KindNamedValueSet:
		nvs := make([]value.NamedValue, len(w.NVS))
		for i, wnv := range w.NVS {
			dv, err := DecodeValue(wnv.Value)
			if err != nil {
				return value.Value{}, err
			}
			nvs[i] = value.NamedValue{Name: wnv.Name, Value: dv}
		}
		return value.NamedValueSet(nvs), nil
	default:
		return value.Value{}, fmt.Errorf("propagation: kind %v has no wire form", w.Kind)
	}
}

// WireVpi, WireActionRequest, WireActionUpdate, and WireFrame mirror
// Vpi/ActionRequest/ActionUpdate/Frame with Value replaced by WireValue
// so the standard library's encoding/json can marshal them directly.
type WireVpi struct {
	ID           uint32    `json:"id,omitempty"`
	Name         string    `json:"name,omitempty"`
	Container    WireValue `json:"container,omitempty"`
	HasContainer bool      `json:"has_container,omitempty"`
}

type WireActionRequest struct {
	UUID        string           `json:"uuid"`
	ServiceName string           `json:"service_name,omitempty"`
	Params      []WireNamedValue `json:"params,omitempty"`
	Cancel      bool             `json:"cancel,omitempty"`
}

type WireActionState struct {
	Terminal   bool             `json:"terminal,omitempty"`
	ResultCode ActionResultCode `json:"result_code,omitempty"`
	Detail     string           `json:"detail,omitempty"`
	Results    []WireNamedValue `json:"results,omitempty"`
}

type WireActionUpdate struct {
	UUID  string          `json:"uuid"`
	State WireActionState `json:"state"`
}

// WireFrame is the JSON-serializable Push Frame.
type WireFrame struct {
	AckSeq   uint32              `json:"ack_seq,omitempty"`
	Seq      uint32              `json:"seq,omitempty"`
	Vpis     []WireVpi           `json:"vpis,omitempty"`
	Requests []WireActionRequest `json:"requests,omitempty"`
	Updates  []WireActionUpdate  `json:"updates,omitempty"`
}

// ToWire projects f into its JSON-serializable form.
func ToWire(f Frame) (WireFrame, error) {
	wf := WireFrame{AckSeq: f.AckSeq, Seq: f.Seq}
	for _, vp := range f.Vpis {
		wv, err := EncodeValue(vp.Container)
		if err != nil {
			return WireFrame{}, err
		}
		wf.Vpis = append(wf.Vpis, WireVpi{ID: vp.ID, Name: vp.Name, Container: wv, HasContainer: vp.HasContainer})
	}
	for _, r := range f.Requests {
		wf.Requests = append(wf.Requests, WireActionRequest{
			UUID: r.UUID, ServiceName: r.ServiceName, Params: encodeNamedValues(r.Params), Cancel: r.Cancel,
		})
	}
	for _, u := range f.Updates {
		wf.Updates = append(wf.Updates, WireActionUpdate{
			UUID: u.UUID,
			State: WireActionState{
				Terminal: u.State.Terminal, ResultCode: u.State.ResultCode,
				Detail: u.State.Detail, Results: encodeNamedValues(u.State.Results),
			},
		})
	}
	return wf, nil
}

// FromWire reconstructs a Frame from its wire form.
func FromWire(wf WireFrame) (Frame, error) {
	f := Frame{AckSeq: wf.AckSeq, Seq: wf.Seq}
	for _, wv := range wf.Vpis {
		cont, err := DecodeValue(wv.Container)
		if err != nil {
			return Frame{}, err
		}
		f.Vpis = append(f.Vpis, Vpi{ID: wv.ID, Name: wv.Name, Container: cont, HasContainer: wv.HasContainer})
	}
	for _, wr := range wf.Requests {
		params, err := decodeNamedValues(wr.Params)
		if err != nil {
			return Frame{}, err
		}
		f.Requests = append(f.Requests, ActionRequest{UUID: wr.UUID, ServiceName: wr.ServiceName, Params: params, Cancel: wr.Cancel})
	}
	for _, wu := range wf.Updates {
		results, err := decodeNamedValues(wu.State.Results)
		if err != nil {
			return Frame{}, err
		}
		f.Updates = append(f.Updates, ActionUpdate{
			UUID: wu.UUID,
			State: ActionState{
				Terminal: wu.State.Terminal, ResultCode: wu.State.ResultCode,
				Detail: wu.State.Detail, Results: results,
			},
		})
	}
	return f, nil
}

func encodeNamedValues(nvs []value.NamedValue) []WireNamedValue {
	if len(nvs) == 0 {
		return nil
	}
	out := make([]WireNamedValue, len(nvs))
	for i, nv := range nvs {
		wv, err := EncodeValue(nv.Value)
		if err != nil {
			// A param/result holding an Object-kind value keeps its
			// name but is sent as an empty value rather than failing
			// the whole frame.
			wv = WireValue{Kind: value.KindEmpty}
		}
		out[i] = WireNamedValue{Name: nv.Name, Value: wv}
	}
	return out
}

func decodeNamedValues(wnvs []WireNamedValue) ([]value.NamedValue, error) {
	if len(wnvs) == 0 {
		return nil, nil
	}
	out := make([]value.NamedValue, len(wnvs))
	for i, wnv := range wnvs {
		v, err := DecodeValue(wnv.Value)
		if err != nil {
			return nil, err
		}
		out[i] = value.NamedValue{Name: wnv.Name, Value: v}
	}
	return out, nil
}
