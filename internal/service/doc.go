// Package service is the composition root for extensible services.
//
// A service declares its operations once, at construction. Each
// operation becomes a pipeline-wrapped callable: third-party code can
// extend it with before/after hooks (UsePlugin) and middleware (Use)
// without the service author planning for it. Operations declared async
// may also be marked serial; every serial call of a service, whatever
// the operation, runs through one FIFO queue so calls fired back to back
// complete in the order they were issued.
//
//	base, err := service.New("editor", []service.Operation{
//		{Name: "select", Async: true, Impl: e.doSelect},
//		{Name: "update", Async: true, Impl: e.doUpdate},
//	}, service.WithSerial("select", "update"))
//
//	base.Go(ctx, "select", "node_1")
//	base.Go(ctx, "update", style)
//	base.Go(ctx, "select", "node_2") // observes the update
//
// A serial operation may fire another serial operation of the same queue
// with Go; the new call runs after the current one. Waiting on it, with
// Call or Future.Wait and the context the operation was given, fails with
// queue.ErrReentrant rather than deadlocking.
package service
