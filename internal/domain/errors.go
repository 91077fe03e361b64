// Package domain declares the typed error kinds every layer of the
// messaging core surfaces, following the teacher's sentinel-error idiom
// (message.ErrNoSession, store.errWrongPassphrase) rather than ad hoc
// string errors.
package domain

import "errors"

var (
	// ErrInvalidPeerKey means a JWK was malformed, off-curve, or carried
	// a private scalar.
	ErrInvalidPeerKey = errors.New("invalid peer key")

	// ErrAuthenticationFailure means an AEAD tag mismatch: tampering, a
	// wrong key, or ratchet desync.
	ErrAuthenticationFailure = errors.New("authentication failure")

	// ErrSkipOverflow means a decrypt requested more skipped indices
	// than config.MaxSkip allows in one step.
	ErrSkipOverflow = errors.New("skip overflow")

	// ErrStaleMessage means a message's index is below the current
	// chain position and no skipped key remains for it.
	ErrStaleMessage = errors.New("stale message")

	// ErrUnexpectedHandshake means an X3DH response arrived without a
	// matching pending init.
	ErrUnexpectedHandshake = errors.New("unexpected handshake response")

	// ErrUnknownSender means a group message arrived from a sender
	// whose chain key is not held.
	ErrUnknownSender = errors.New("unknown sender")

	// ErrInvalidSenderKey means a sender-key envelope failed to decrypt.
	ErrInvalidSenderKey = errors.New("invalid sender key envelope")

	// ErrTransferTimeout means a media transfer went idle past
	// config.TransferIdleTimeout.
	ErrTransferTimeout = errors.New("transfer timeout")

	// ErrTransferTooLarge means a media transfer exceeded its size cap.
	ErrTransferTooLarge = errors.New("transfer too large")

	// ErrUnsupportedMedia means a transfer's declared media type is
	// neither image nor video.
	ErrUnsupportedMedia = errors.New("unsupported media type")

	// ErrFatalInit means key derivation failed or the wallet refused to
	// sign; the room transitions to encryptionStatus = error.
	ErrFatalInit = errors.New("fatal initialization failure")

	// ErrRatchetNotReady means Encrypt was called before any sending
	// chain exists yet (handshake incomplete).
	ErrRatchetNotReady = errors.New("ratchet has no sending chain yet")

	// ErrChainPoisoned means a SkipOverflow already marked this peer's
	// chain unusable; the orchestrator must request a fresh X3DH before
	// this direction can be used again.
	ErrChainPoisoned = errors.New("ratchet chain poisoned by skip overflow")
)
