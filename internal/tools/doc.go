// Package tools provides reusable host helpers shared by the launcher runtimes.
//
// Ownership boundary:
// - child process execution with cancellation
//
// - exit status normalization
package tools
