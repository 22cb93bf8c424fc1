// Package compiler turns CUE service manifests into ir specs.
//
// A manifest declares services and their operations, and optionally the
// history stack size:
//
//	history: max_size: 50
//	service: editor: operations: {
//		select: {async: true, serial: true}
//		highlight: {}
//	}
//
// CompileService and CompileHistory convert single values with positioned
// CompileErrors. Validate then checks the compiled specs for rules CUE
// cannot express on its own, such as serial operations that are not async.
package compiler
