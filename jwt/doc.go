// Package jwt signs and verifies the HS256 access and refresh tokens used by
// vhauth.
//
// Each token is signed with a secret derived from the deployment base secret,
// the user id and the session id (see [Manager.DeriveSecret]). A token minted
// for one session therefore cannot be verified under any other session, even
// for the same user, and no per-session key material is ever stored.
//
// Verification is two-phase: [Manager.PeekAccess] / [Manager.PeekRefresh]
// extract the routing ids without trusting anything else, the caller confirms
// the session exists and is owned by that user, and only then
// [Manager.ParseAccess] / [Manager.ParseRefresh] check the signature and
// registered claims.
package jwt
