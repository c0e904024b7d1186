// Package stepflow provides a definition-driven workflow execution engine
// for Go. Workflows are directed graphs of steps with conditional
// transitions; the engine walks the graph, runs steps through a pluggable
// action registry, forks and joins parallel branches, retries transient
// failures, suspends on external events, and compensates completed steps
// on failure.
//
// Stepflow is a library, not a service. Import it, configure a store and
// an event bus, register step actions, and execute validated definitions.
//
// # Quick Start
//
//	eng, err := engine.New(memory.New(), event.NewMemoryBus(logger),
//	    engine.WithActions(actions),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := eng.Execute(ctx, def, engine.Request{Input: input})
//
// # Architecture
//
// Each concern lives in its own package: definition (graph model and
// validator), expr (condition expressions), action (step handlers),
// instance (runtime state and persistence contract), event (bus),
// backoff (retry delays), hook (lifecycle observers), middleware
// (cross-cutting step wrappers), engine (the orchestrator), and store
// (persistence backends).
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package stepflow
