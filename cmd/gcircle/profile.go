package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gordian-engine/trustcircle/gcrypto"
)

// Profile is the on-disk configuration of a single device.
type Profile struct {
	PeerID string `toml:"peer_id"`
	Name   string `toml:"name"`

	// Circle name kept by this device.
	Circle string `toml:"circle"`

	// Paths to hex-encoded ed25519 seeds.
	// Relative paths are resolved against the profile's directory.
	UserKey   string `toml:"user_key"`
	DeviceKey string `toml:"device_key"`

	// SQLite database holding trusted circles.
	Database string `toml:"database"`

	// Unix socket of a signing agent holding the device key.
	// When set, commands other than "agent" never read DeviceKey.
	DeviceAgent string `toml:"device_agent,omitempty"`
}

const (
	defaultCircle    = "default"
	defaultUserKey   = "user.key"
	defaultDeviceKey = "device.key"
	defaultDatabase  = "circles.sqlite"
)

func DefaultProfile() Profile {
	return Profile{
		Circle:    defaultCircle,
		UserKey:   defaultUserKey,
		DeviceKey: defaultDeviceKey,
		Database:  defaultDatabase,
	}
}

// LoadProfile reads the profile at path.
// Unset fields keep their defaults, unknown keys are an error,
// and every relative path in the result is made relative to path's directory.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()

	meta, err := toml.DecodeFile(path, &p)
	if err != nil {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}
	if un := meta.Undecoded(); len(un) > 0 {
		keys := make([]string, len(un))
		for i, k := range un {
			keys[i] = k.String()
		}
		return Profile{}, fmt.Errorf("load profile: unknown keys: %s", strings.Join(keys, ", "))
	}

	p.PeerID = strings.TrimSpace(p.PeerID)
	p.Name = strings.TrimSpace(p.Name)
	p.Circle = strings.TrimSpace(p.Circle)

	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("invalid profile %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	p.UserKey = resolve(dir, p.UserKey)
	p.DeviceKey = resolve(dir, p.DeviceKey)
	p.Database = resolve(dir, p.Database)
	if p.DeviceAgent != "" {
		p.DeviceAgent = resolve(dir, p.DeviceAgent)
	}

	return p, nil
}

func (p Profile) Validate() error {
	var errs []error
	if p.PeerID == "" {
		errs = append(errs, errors.New("peer_id must be set"))
	}
	if p.Circle == "" {
		errs = append(errs, errors.New("circle must not be empty"))
	}
	if p.UserKey == "" {
		errs = append(errs, errors.New("user_key must not be empty"))
	}
	if p.DeviceKey == "" {
		errs = append(errs, errors.New("device_key must not be empty"))
	}
	if p.Database == "" {
		errs = append(errs, errors.New("database must not be empty"))
	}
	return errors.Join(errs...)
}

// WriteProfile writes p to path, failing if the file exists and force is false.
func WriteProfile(path string, p Profile, force bool) error {
	if err := p.Validate(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(p); err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	return writeNewFile(path, buf.Bytes(), 0o644, force)
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func writeNewFile(path string, data []byte, perm os.FileMode, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}

	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteSeed stores the signer's seed at path, hex-encoded.
func WriteSeed(path string, s gcrypto.Ed25519Signer, force bool) error {
	return writeNewFile(path, []byte(hex.EncodeToString(s.Seed())+"\n"), 0o600, force)
}

func ReadSeed(path string) (gcrypto.Ed25519Signer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return gcrypto.Ed25519Signer{}, fmt.Errorf("read key: %w", err)
	}

	seed, err := hex.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return gcrypto.Ed25519Signer{}, fmt.Errorf("decode key %s: %w", path, err)
	}
	if len(seed) != ed25519.SeedSize {
		return gcrypto.Ed25519Signer{}, fmt.Errorf("key %s: expected %d seed bytes, got %d", path, ed25519.SeedSize, len(seed))
	}

	return gcrypto.NewEd25519SignerFromSeed(seed)
}
