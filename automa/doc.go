// Package automa executes declaratively composed graphs of workers.
//
// A GraphAutoma schedules workers in passes: every ready worker in a pass
// runs concurrently, the pass joins, deferred topology mutations and ferry
// redirections land, and the next pass begins with the newly unlocked
// workers. Dependency outputs flow into worker arguments through per-worker
// mapping rules, run input propagation, and declarative From/System
// injection.
//
// Workers may pause a run for human input via Call.InteractWithHuman. The
// run then returns a SuspendedError carrying a versioned snapshot; the
// caller persists it, gathers answers, reconstructs the graph, restores the
// snapshot, and runs again with the feedback. Suspended workers replay from
// their start with answered interactions satisfied in call order.
//
// SequentialAutoma and ConcurrentAutoma are fixed-shape specializations for
// the two most common topologies.
package automa
