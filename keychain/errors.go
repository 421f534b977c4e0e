package keychain

import "errors"

// LockedSentinel is written into a secret field whenever decryption fails
// or the keychain has never been unlocked, so downstream tooling that
// greps for this exact string keeps working regardless of which record
// kind produced it.
const LockedSentinel = "[Invalid Password / Keychain Locked]"

// Structural errors abort parsing outright: there is nothing sound left to
// enumerate once one of these occurs.
var (
	ErrTruncatedHeader = errors.New("keychain: truncated or missing file header")
	ErrTruncatedSchema = errors.New("keychain: truncated schema")
	ErrNoCredential    = errors.New("keychain: no password or raw key supplied")
)

// Credential and missing-table conditions are routine, not structural: a
// missing table enumerates as empty, and a bad credential leaves every
// secret value at LockedSentinel. Neither is surfaced as an error from the
// enumeration API: a bad credential is observable through (*Keychain).Locked,
// a missing table only through the logged warning and the empty result.
