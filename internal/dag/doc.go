// Package dag orders tasks so that every task comes after the tasks it
// depends on.
//
// Order is a topological sort by repeated rotation over a FIFO queue: a task
// whose dependencies are all placed is emitted, otherwise it goes back to the
// tail. When every remaining task has been tried once since the last placement
// the input cannot be ordered and a *CycleError is returned. A dependency name
// that matches no task is never satisfied, so it is reported the same way.
//
// Graph is a small adjacency structure used to explain such a failure: it
// finds a concrete loop among the tasks that could not be placed.
package dag
