package gcircle

import "errors"

var (
	// ErrBadFormat is returned when a serialized circle is malformed.
	ErrBadFormat = errors.New("malformed circle encoding")

	// ErrIncompatibleCircle is returned when decoding an envelope
	// whose version is not supported.
	ErrIncompatibleCircle = errors.New("incompatible circle version")

	ErrAlreadyPeer     = errors.New("already a peer")
	ErrNotPeer         = errors.New("not a peer")
	ErrNotApplicant    = errors.New("not an applicant")
	ErrBadKey          = errors.New("unusable key")
	ErrBadSignature    = errors.New("bad signature")
	ErrPublicKeyAbsent = errors.New("public key absent")
)

// removalError reports a RemovePeer or RemovePeers call
// naming a requestor or target that is not a peer.
// It matches both [ErrNotPeer] and [ErrAlreadyPeer],
// the latter being the historical kind for removal misuse.
type removalError struct {
	msg string
}

func (e removalError) Error() string {
	return e.msg + ": " + ErrNotPeer.Error()
}

func (e removalError) Is(target error) bool {
	return target == ErrNotPeer || target == ErrAlreadyPeer
}
