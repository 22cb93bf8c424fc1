package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/opline/internal/ir"
)

// marshalArgs converts an argument list to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalArgs(args ir.IRArray) (string, error) {
	if args == nil {
		args = ir.IRArray{}
	}
	data, err := ir.MarshalCanonical(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(data), nil
}

// marshalValue converts any IRValue to canonical JSON TEXT. nil is stored as null.
func marshalValue(v ir.IRValue) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// marshalSnapshot stores a nil snapshot as null.
func marshalSnapshot(obj ir.IRObject) (string, error) {
	if obj == nil {
		return "null", nil
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(data), nil
}

// unmarshalArgs parses canonical JSON TEXT to IRArray.
// Uses ir.IRArray.UnmarshalJSON which handles large integers via json.Number
// to avoid float64 precision loss for values > 2^53.
func unmarshalArgs(data string) (ir.IRArray, error) {
	if data == "" || data == "[]" {
		return ir.IRArray{}, nil
	}
	var arr ir.IRArray
	if err := json.Unmarshal([]byte(data), &arr); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	return arr, nil
}

// unmarshalValue parses canonical JSON TEXT to an IRValue.
func unmarshalValue(data string) (ir.IRValue, error) {
	if data == "" {
		return ir.IRNull{}, nil
	}
	v, err := ir.UnmarshalIRValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}

// unmarshalSnapshot parses canonical JSON TEXT to IRObject. null yields nil.
func unmarshalSnapshot(data string) (ir.IRObject, error) {
	if data == "" || data == "null" {
		return nil, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return obj, nil
}
