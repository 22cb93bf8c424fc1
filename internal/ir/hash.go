package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainInvocation = "opline/invocation/v1"
	DomainCompletion = "opline/completion/v1"
	DomainSnapshot   = "opline/snapshot/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// InvocationID computes the content-addressed ID of an invocation record.
// The ID is stable across runs given the same flow token, operation, args and seq.
func InvocationID(flowToken string, op OperationRef, args IRArray, seq int64) (string, error) {
	obj := IRObject{
		"flow_token": IRString(flowToken),
		"operation":  IRString(op),
		"args":       args,
		"seq":        IRInt(seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("InvocationID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainInvocation, canonical), nil
}

// CompletionID computes the content-addressed ID of a completion record.
func CompletionID(invocationID, outcome string, result IRValue, seq int64) (string, error) {
	if result == nil {
		result = IRNull{}
	}
	obj := IRObject{
		"invocation_id": IRString(invocationID),
		"outcome":       IRString(outcome),
		"result":        result,
		"seq":           IRInt(seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CompletionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCompletion, canonical), nil
}

// SnapshotHash identifies a document snapshot by content. Two snapshots
// with equal trees hash equal regardless of map iteration order.
func SnapshotHash(snapshot IRValue) (string, error) {
	canonical, err := MarshalCanonical(snapshot)
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// MustInvocationID is like InvocationID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustInvocationID(flowToken string, op OperationRef, args IRArray, seq int64) string {
	id, err := InvocationID(flowToken, op, args, seq)
	if err != nil {
		panic(err)
	}
	return id
}
