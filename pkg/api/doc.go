// Package api defines the records and error types shared by the sandbox
// lifecycle packages.
//
// The package performs no I/O. Records mirror the persisted rows this core
// reads and writes, and the JSON shapes returned by the HTTP boundary.
//
// Core types:
//   - [Snapshot]: a frozen sandbox filesystem image that seeds new sandboxes
//   - [Generation]: one produced code artifact owned by an exercise
//   - [ExerciseSandbox], [AgentSandbox]: results handed back to callers
//   - [Error]: typed failure with one of four [ErrorType] categories
package api
