// Package syncutils provides the mutex types used by backends and the store.
// Building with -tags deadlock swaps them for go-deadlock's detecting mutexes.
package syncutils
