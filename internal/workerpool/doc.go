// Package workerpool runs independent units of work on a bounded set of
// goroutines and folds their results through a serialized reduce step. The
// index build, nearest-query and frame extraction stages all share it.
package workerpool
