// Package internal contains helper utilities that are intentionally private to the
// engine: one-time token generation and the hashing scheme shared by the stores
// and the session registry.
//
// # What this package must NOT do
//
//   - Export types that appear in the public API.
//   - Be imported by any package outside this module.
package internal
