package mirror

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"
)

// Codec serializes the arrays of the table.
type Codec interface {
	Name() string
	EncodeBools([]bool) ([]byte, error)
	EncodeNumbers([]int) ([]byte, error)
	DecodeBools([]byte) ([]bool, error)
	DecodeNumbers([]byte) ([]int, error)
}

// CodecByName returns the codec "json" or "proto".
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "proto":
		return ProtoCodec{}, nil
	}
	return nil, fmt.Errorf("unknown payload codec %q", name)
}

// JSONCodec encodes arrays as JSON arrays.
type JSONCodec struct{}

// Name implements Codec.
func (JSONCodec) Name() string { return "json" }

// EncodeBools implements Codec.
func (JSONCodec) EncodeBools(vals []bool) ([]byte, error) {
	if vals == nil {
		vals = []bool{}
	}
	return json.Marshal(vals)
}

// EncodeNumbers implements Codec.
func (JSONCodec) EncodeNumbers(vals []int) ([]byte, error) {
	if vals == nil {
		vals = []int{}
	}
	return json.Marshal(vals)
}

// DecodeBools implements Codec.
func (JSONCodec) DecodeBools(data []byte) (vals []bool, err error) {
	err = json.Unmarshal(data, &vals)
	return
}

// DecodeNumbers implements Codec. Remote peers may send doubles.
func (JSONCodec) DecodeNumbers(data []byte) ([]int, error) {
	var nums []float64
	if err := json.Unmarshal(data, &nums); err != nil {
		return nil, err
	}
	vals := make([]int, len(nums))
	for n, num := range nums {
		vals[n] = int(math.Round(num))
	}
	return vals, nil
}

// ProtoCodec encodes arrays as google.protobuf.ListValue.
type ProtoCodec struct{}

// Name implements Codec.
func (ProtoCodec) Name() string { return "proto" }

// EncodeBools implements Codec.
func (ProtoCodec) EncodeBools(vals []bool) ([]byte, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, len(vals))}
	for n, val := range vals {
		list.Values[n] = &structpb.Value{Kind: &structpb.Value_BoolValue{BoolValue: val}}
	}
	return proto.Marshal(list)
}

// EncodeNumbers implements Codec.
func (ProtoCodec) EncodeNumbers(vals []int) ([]byte, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, len(vals))}
	for n, val := range vals {
		list.Values[n] = &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: float64(val)}}
	}
	return proto.Marshal(list)
}

// DecodeBools implements Codec.
func (ProtoCodec) DecodeBools(data []byte) ([]bool, error) {
	var list structpb.ListValue
	if err := proto.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	vals := make([]bool, len(list.Values))
	for n, v := range list.Values {
		kind, ok := v.GetKind().(*structpb.Value_BoolValue)
		if !ok {
			return nil, fmt.Errorf("item %d: not a bool", n)
		}
		vals[n] = kind.BoolValue
	}
	return vals, nil
}

// DecodeNumbers implements Codec.
func (ProtoCodec) DecodeNumbers(data []byte) ([]int, error) {
	var list structpb.ListValue
	if err := proto.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	vals := make([]int, len(list.Values))
	for n, v := range list.Values {
		kind, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("item %d: not a number", n)
		}
		vals[n] = int(math.Round(kind.NumberValue))
	}
	return vals, nil
}
