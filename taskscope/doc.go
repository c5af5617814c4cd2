// Package taskscope runs a group of concurrently executing subtasks as a
// single logical operation. A Scope owns the subtasks it forks, drives a
// pluggable Joiner policy that decides when the group is done, enforces an
// optional deadline, and guarantees that every subtask has reached a
// terminal state before the scope closes. Cancellation is cooperative:
// each subtask body receives a context token and is never force-killed.
package taskscope
