package ir

import "strings"

// OperationRef names a declared operation of a service.
// Format: "service.operation".
type OperationRef string

// NewOperationRef joins a service and operation name.
func NewOperationRef(service, operation string) OperationRef {
	return OperationRef(service + "." + operation)
}

// Service returns the service part of the reference.
func (r OperationRef) Service() string {
	s, _, _ := strings.Cut(string(r), ".")
	return s
}

// Operation returns the operation part of the reference.
func (r OperationRef) Operation() string {
	_, op, ok := strings.Cut(string(r), ".")
	if !ok {
		return string(r)
	}
	return op
}

// Completion outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// History step kinds.
const (
	StepPush = "push"
	StepUndo = "undo"
	StepRedo = "redo"
)

// Invocation records one call entering an operation's middleware chain.
type Invocation struct {
	ID        string       `json:"id"` // Content-addressed hash
	FlowToken string       `json:"flow_token"`
	Operation OperationRef `json:"operation"`
	Args      IRArray      `json:"args"`
	Seq       int64        `json:"seq"` // Logical clock
}

// Completion records how an invocation finished.
type Completion struct {
	ID           string  `json:"id"` // Content-addressed hash
	InvocationID string  `json:"invocation_id"`
	Outcome      string  `json:"outcome"` // OutcomeOK or OutcomeError
	Result       IRValue `json:"result"`
	Error        string  `json:"error,omitempty"`
	Seq          int64   `json:"seq"`
}

// HistoryStep records a push, undo or redo on a document's history.
type HistoryStep struct {
	FlowToken string   `json:"flow_token"`
	DocKey    string   `json:"doc_key"`
	Kind      string   `json:"kind"`
	Found     bool     `json:"found"`      // false when undo/redo had nothing to return
	EntryHash string   `json:"entry_hash"` // SnapshotHash of Snapshot, empty when !Found
	Snapshot  IRObject `json:"snapshot,omitempty"`
	Seq       int64    `json:"seq"`
}

// ServiceSpec is a compiled service manifest.
type ServiceSpec struct {
	Name       string          `json:"name"`
	Operations []OperationSpec `json:"operations"` // Declaration order
}

// OperationSpec declares one operation of a service.
type OperationSpec struct {
	Name   string `json:"name"`
	Async  bool   `json:"async"`
	Serial bool   `json:"serial,omitempty"`
}

// SerialNames returns the names of operations declared serial, in order.
func (s ServiceSpec) SerialNames() []string {
	var names []string
	for _, op := range s.Operations {
		if op.Serial {
			names = append(names, op.Name)
		}
	}
	return names
}

// HistorySpec configures per-document history stacks.
type HistorySpec struct {
	MaxSize int `json:"max_size"` // 0 means default
}
