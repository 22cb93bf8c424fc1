package service

import (
	"slices"

	"github.com/roach88/opline/internal/ir"
	"github.com/roach88/opline/internal/pipeline"
)

// FromSpec builds a Base from a compiled manifest. impls supplies the
// implementation of every declared operation; an implementation for an
// undeclared name is a *DeclarationError, as is a missing one.
// Serial flags from the spec are appended to opts.
func FromSpec(spec ir.ServiceSpec, impls map[string]pipeline.Func, opts ...Option) (*Base, error) {
	ops := make([]Operation, 0, len(spec.Operations))
	for _, op := range spec.Operations {
		ops = append(ops, Operation{Name: op.Name, Async: op.Async, Impl: impls[op.Name]})
	}

	for name := range impls {
		if !slices.ContainsFunc(spec.Operations, func(op ir.OperationSpec) bool { return op.Name == name }) {
			return nil, &DeclarationError{Service: spec.Name, Operation: name, Message: "implementation for undeclared operation"}
		}
	}

	if serial := spec.SerialNames(); len(serial) > 0 {
		opts = append(slices.Clone(opts), WithSerial(serial...))
	}
	return New(spec.Name, ops, opts...)
}

// Spec returns the declarations of b in manifest form.
func (b *Base) Spec() ir.ServiceSpec {
	spec := ir.ServiceSpec{Name: b.name}
	for _, d := range b.Descriptors() {
		spec.Operations = append(spec.Operations, ir.OperationSpec{Name: d.Name, Async: d.Async, Serial: d.Serial})
	}
	return spec
}
