package xswap

// Token identifies an asset on either chain. Tokens are opaque to the
// engines, only the wallet collaborator interprets them.
type Token string

// AccountID identifies a party on the local chain. Account ids are opaque
// strings, the engines never parse them.
type AccountID string

// Amount is a value denominated in the smallest unit of a token.
type Amount uint64
