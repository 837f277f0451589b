// Package auth authenticates callers of the sandbox lifecycle API.
//
// The callers are services (the exercises web app, deploy hooks), not end
// users. Authentication uses a chain of authenticators with three-outcome
// voting: each returns Yes (identity found), No (credentials invalid), or
// Abstain (can't handle). A default decision applies when all abstain, so
// a chain without authenticators and DefaultDecision Yes leaves the API open.
package auth
