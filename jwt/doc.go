// Package jwt issues and verifies the HS256 access and refresh tokens used by
// the engine. The two token kinds are signed with distinct secrets and carry
// distinct audience values, so neither verifies as the other. Verification
// separates pure expiry from every other failure so callers can report the
// two conditions differently.
package jwt
