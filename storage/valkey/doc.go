// Package valkey provides a Valkey-backed implementation of all storage
// interfaces for multi-instance deployments.
//
// # Key layout
//
// All keys carry a configurable prefix (default "oauth:"):
//
//	{prefix}client:{clientID}      client record (JSON, no TTL)
//	{prefix}clients                set of registered client IDs
//	{prefix}code:{code}            authorization code envelope (TTL)
//	{prefix}idx:codes:{clientID}   set of pending codes per client
//	{prefix}access:{accessToken}   token record envelope (TTL to refresh expiry)
//	{prefix}refresh:{refreshToken} refresh index -> access token value (TTL)
//	{prefix}idx:tokens:{clientID}  set of access tokens per client
//	{prefix}scope:{name}           scope catalog entry (JSON, no TTL)
//	{prefix}scopes                 set of scope names
//	{prefix}binding:{provider}:{subject} identity binding (JSON, no TTL)
//
// # Atomicity
//
// Single-use consumption of authorization codes and refresh-token rotation
// are implemented with Lua scripts, so exactly one concurrent caller can
// observe a given code or refresh token. The scripts derive token keys from
// the configured prefix and therefore require a non-clustered deployment (or
// hash-tagged prefixes).
//
// # Encryption at rest
//
// When an Encryptor is set, the serialized grant records (codes and tokens)
// are sealed with AES-256-GCM before storage. The envelope around the sealed
// payload keeps the owning client_id and expiry in plaintext, which is what
// the Lua scripts need for client scoping without decrypting.
package valkey
