package remote

import (
	"fmt"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/quarrydb/quarry/pkg/types"
)

// toAttributeValue converts an engine value to the wire shape.
func toAttributeValue(v types.Value) (ddbtypes.AttributeValue, error) {
	switch v.Kind() {
	case types.KindNull:
		return &ddbtypes.AttributeValueMemberNULL{Value: true}, nil
	case types.KindString:
		return &ddbtypes.AttributeValueMemberS{Value: v.Text()}, nil
	case types.KindNumber:
		return &ddbtypes.AttributeValueMemberN{Value: v.Text()}, nil
	case types.KindBool:
		return &ddbtypes.AttributeValueMemberBOOL{Value: v.BoolValue()}, nil
	case types.KindBinary:
		return &ddbtypes.AttributeValueMemberB{Value: v.Bytes()}, nil
	case types.KindList:
		elems := v.List()
		out := make([]ddbtypes.AttributeValue, 0, len(elems))
		for _, e := range elems {
			av, err := toAttributeValue(e)
			if err != nil {
				return nil, err
			}
			out = append(out, av)
		}
		return &ddbtypes.AttributeValueMemberL{Value: out}, nil
	case types.KindMap:
		m := v.Map()
		out := make(map[string]ddbtypes.AttributeValue, len(m))
		for k, e := range m {
			av, err := toAttributeValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = av
		}
		return &ddbtypes.AttributeValueMemberM{Value: out}, nil
	case types.KindStringSet:
		return &ddbtypes.AttributeValueMemberSS{Value: v.SetMembers()}, nil
	case types.KindNumberSet:
		return &ddbtypes.AttributeValueMemberNS{Value: v.SetMembers()}, nil
	default:
		return nil, fmt.Errorf("remote: cannot convert value kind %s", v.Kind())
	}
}

// fromAttributeValue converts a wire value to the engine shape.
// Binary sets have no engine equivalent and come back as lists of
// binary values.
func fromAttributeValue(av ddbtypes.AttributeValue) (types.Value, error) {
	switch m := av.(type) {
	case *ddbtypes.AttributeValueMemberNULL:
		return types.Null(), nil
	case *ddbtypes.AttributeValueMemberS:
		return types.String(m.Value), nil
	case *ddbtypes.AttributeValueMemberN:
		return types.Number(m.Value), nil
	case *ddbtypes.AttributeValueMemberBOOL:
		return types.Bool(m.Value), nil
	case *ddbtypes.AttributeValueMemberB:
		return types.Binary(m.Value), nil
	case *ddbtypes.AttributeValueMemberL:
		elems := make([]types.Value, 0, len(m.Value))
		for _, e := range m.Value {
			v, err := fromAttributeValue(e)
			if err != nil {
				return types.Value{}, err
			}
			elems = append(elems, v)
		}
		return types.ListOf(elems...), nil
	case *ddbtypes.AttributeValueMemberM:
		out := make(map[string]types.Value, len(m.Value))
		for k, e := range m.Value {
			v, err := fromAttributeValue(e)
			if err != nil {
				return types.Value{}, err
			}
			out[k] = v
		}
		return types.MapOf(out), nil
	case *ddbtypes.AttributeValueMemberSS:
		return types.StringSet(m.Value...), nil
	case *ddbtypes.AttributeValueMemberNS:
		return types.NumberSet(m.Value...), nil
	case *ddbtypes.AttributeValueMemberBS:
		elems := make([]types.Value, 0, len(m.Value))
		for _, b := range m.Value {
			elems = append(elems, types.Binary(b))
		}
		return types.ListOf(elems...), nil
	default:
		return types.Value{}, fmt.Errorf("remote: unsupported attribute value %T", av)
	}
}

// toWireItem converts a full engine item to the wire shape.
func toWireItem(it types.Item) (map[string]ddbtypes.AttributeValue, error) {
	out := make(map[string]ddbtypes.AttributeValue, len(it))
	for name, v := range it {
		av, err := toAttributeValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = av
	}
	return out, nil
}

// fromWireItem converts a wire item to the engine shape.
func fromWireItem(item map[string]ddbtypes.AttributeValue) (types.Item, error) {
	out := make(types.Item, len(item))
	for name, av := range item {
		v, err := fromAttributeValue(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
