package gcrypto

import (
	"bytes"
	"fmt"
	"reflect"
)

const registryPrefixLen = 8

// Registry maps public key type names to decoders,
// so that keys of different types can be serialized with a short type prefix.
//
// The zero value is ready to use.
// Registry is not safe for concurrent registration;
// register all types before sharing the Registry.
type Registry struct {
	byPrefix map[[registryPrefixLen]byte]func([]byte) (PubKey, error)
	byType   map[reflect.Type][registryPrefixLen]byte
}

// Register associates name with the concrete type of inst and the decoding function.
// The name must be at most 8 bytes.
func (r *Registry) Register(name string, inst PubKey, newFn func([]byte) (PubKey, error)) {
	if len(name) > registryPrefixLen {
		panic(fmt.Errorf("BUG: registry name %q longer than %d bytes", name, registryPrefixLen))
	}

	if r.byPrefix == nil {
		r.byPrefix = make(map[[registryPrefixLen]byte]func([]byte) (PubKey, error))
		r.byType = make(map[reflect.Type][registryPrefixLen]byte)
	}

	var prefix [registryPrefixLen]byte
	copy(prefix[:], name)

	if _, ok := r.byPrefix[prefix]; ok {
		panic(fmt.Errorf("BUG: registry name %q already registered", name))
	}

	r.byPrefix[prefix] = newFn
	r.byType[reflect.TypeOf(inst)] = prefix
}

// Marshal returns the type-prefixed bytes of k.
// Marshal panics if k's type was never registered.
func (r *Registry) Marshal(k PubKey) []byte {
	prefix, ok := r.byType[reflect.TypeOf(k)]
	if !ok {
		panic(fmt.Errorf("BUG: unregistered public key type %T", k))
	}

	kb := k.PubKeyBytes()
	out := make([]byte, 0, registryPrefixLen+len(kb))
	out = append(out, prefix[:]...)
	return append(out, kb...)
}

// Unmarshal decodes bytes produced by [*Registry.Marshal].
func (r *Registry) Unmarshal(b []byte) (PubKey, error) {
	if len(b) < registryPrefixLen {
		return nil, fmt.Errorf("public key too short for type prefix: %d bytes", len(b))
	}

	var prefix [registryPrefixLen]byte
	copy(prefix[:], b)

	newFn, ok := r.byPrefix[prefix]
	if !ok {
		return nil, fmt.Errorf(
			"no registered public key type for prefix %q",
			bytes.TrimRight(prefix[:], "\x00"),
		)
	}

	return newFn(b[registryPrefixLen:])
}
