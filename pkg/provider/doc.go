// Package provider defines the contract between the sandbox lifecycle
// packages and a remote sandbox-hosting service.
//
// The core never manages images, networking, or isolation itself. It only
// relies on the operations below: list, get, create, connect, and on a live
// sandbox run a command, write files, snapshot, kill, and resolve the public
// host of an exposed port.
//
// Adapters live in subpackages: vercel (git- and snapshot-sourced sandboxes)
// and e2b (template-sourced sandboxes with metadata). providertest holds an
// in-memory fake for tests.
package provider
