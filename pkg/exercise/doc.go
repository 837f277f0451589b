// Package exercise connects exercises to sandboxes running their latest
// generated code.
//
// A running sandbox is found by its "exerciseId" metadata tag. When none is
// running, the sandbox id persisted on the latest completed generation is
// trusted and connected to; failing that, a new sandbox is created from the
// exercise template, the generation's code archive is written into it, and
// its id is recorded on the generation.
//
// Two calls for the same exercise may race and both create a sandbox. Set
// Config.SerializePerExercise to serialize them within one process.
package exercise
