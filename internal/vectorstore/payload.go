package vectorstore

import (
	"encoding/json"
	"fmt"
	"math"

	pb "github.com/qdrant/go-client/qdrant"
)

// Payload keys written alongside metadata. "document" is the key the MCP server
// uses, so both spellings are read back.
const (
	payloadContent  = "content"
	payloadDocument = "document"
	payloadMetadata = "metadata"
)

// ToValue converts a JSON-shaped Go value into a Qdrant payload value.
func ToValue(v any) (*pb.Value, error) {
	switch val := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{NullValue: pb.NullValue_NULL_VALUE}}, nil
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}, nil
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}, nil
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}, nil
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}, nil
	case float32:
		return floatValue(float64(val)), nil
	case float64:
		return floatValue(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: i}}, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: f}}, nil
	case []string:
		list := make([]*pb.Value, len(val))
		for i, s := range val {
			list[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: list}}}, nil
	case []any:
		list := make([]*pb.Value, len(val))
		for i, item := range val {
			pv, err := ToValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = pv
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: list}}}, nil
	case map[string]any:
		fields, err := ToPayload(val)
		if err != nil {
			return nil, err
		}
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}}, nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T", v)
	}
}

// floatValue keeps whole numbers integral so they round-trip as integers.
func floatValue(f float64) *pb.Value {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(f)}}
	}
	return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: f}}
}

// ToPayload converts a metadata map into a Qdrant payload.
func ToPayload(m map[string]any) (map[string]*pb.Value, error) {
	out := make(map[string]*pb.Value, len(m))
	for k, v := range m {
		pv, err := ToValue(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = pv
	}
	return out, nil
}

// FromValue converts a Qdrant payload value back into a JSON-shaped Go value.
func FromValue(v *pb.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]any, len(values))
		for i, item := range values {
			out[i] = FromValue(item)
		}
		return out
	case *pb.Value_StructValue:
		return FromPayload(kind.StructValue.GetFields())
	default:
		return nil
	}
}

// FromPayload converts a Qdrant payload into a metadata map.
func FromPayload(p map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = FromValue(v)
	}
	return out
}

// splitPayload separates content from metadata for both payload layouts: flat
// (metadata keys at the top level) and nested under "metadata". Nested keys win.
func splitPayload(p map[string]*pb.Value) (string, map[string]any) {
	raw := FromPayload(p)

	content, _ := raw[payloadContent].(string)
	if content == "" {
		content, _ = raw[payloadDocument].(string)
	}

	md := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == payloadContent || k == payloadDocument || k == payloadMetadata {
			continue
		}
		md[k] = v
	}
	if nested, ok := raw[payloadMetadata].(map[string]any); ok {
		for k, v := range nested {
			md[k] = v
		}
	}
	return content, md
}

// keywordFilter matches points whose key equals value at the top level or under "metadata".
func keywordFilter(key, value string) *pb.Filter {
	keys := []string{key, payloadMetadata + "." + key}
	conds := make([]*pb.Condition, len(keys))
	for i, k := range keys {
		conds[i] = &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   k,
					Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
				},
			},
		}
	}
	return &pb.Filter{Should: conds}
}
