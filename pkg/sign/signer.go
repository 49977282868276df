// Package sign produces detached signatures over canonical bytes. Any
// signature covers exactly the canonical serialization of its payload;
// re-serializing the payload elsewhere would invalidate it.
package sign

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/datanet-labs/datanet/pkg/canonicalize"
)

// KeyProvider abstracts the signing backend so the in-memory implementation
// can be swapped for an HSM or KMS.
type KeyProvider interface {
	Sign(msg []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
}

// MemoryKeyProvider holds an Ed25519 keypair in process memory.
type MemoryKeyProvider struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func NewMemoryKeyProvider() (*MemoryKeyProvider, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &MemoryKeyProvider{pub: pub, priv: priv}, nil
}

// NewMemoryKeyProviderFromSeed builds a deterministic provider, used for
// derived keys and tests.
func NewMemoryKeyProviderFromSeed(seed []byte) (*MemoryKeyProvider, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("sign: seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &MemoryKeyProvider{pub: priv.Public().(ed25519.PublicKey), priv: priv}, nil
}

func (m *MemoryKeyProvider) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(m.priv, msg), nil
}

func (m *MemoryKeyProvider) PublicKey() ed25519.PublicKey {
	return m.pub
}

// PrivateKey exposes the key for JWS signing.
func (m *MemoryKeyProvider) PrivateKey() ed25519.PrivateKey {
	return m.priv
}

// DeriveForAuthor derives an author-specific provider from the master seed
// using HKDF-SHA256, so each author signs with a unique deterministic key.
func (m *MemoryKeyProvider) DeriveForAuthor(author string) (*MemoryKeyProvider, error) {
	if author == "" {
		return nil, fmt.Errorf("sign: author must not be empty")
	}

	r := hkdf.New(sha256.New, m.priv.Seed(), []byte("datanet-author-kdf"), []byte(author))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("sign: HKDF derivation failed: %w", err)
	}
	return NewMemoryKeyProviderFromSeed(seed)
}

// Signer signs canonical serializations of JSON-like payloads.
type Signer struct {
	provider KeyProvider
}

func NewSigner(p KeyProvider) *Signer {
	return &Signer{provider: p}
}

// SignDetached canonicalizes v and signs the exact canonical bytes,
// returning both so the caller can store them together.
func (s *Signer) SignDetached(v any) (sig, payload []byte, err error) {
	payload, err = canonicalize.Canonicalize(v)
	if err != nil {
		return nil, nil, fmt.Errorf("sign: canonicalize payload: %w", err)
	}
	sig, err = s.provider.Sign(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("sign: %w", err)
	}
	return sig, payload, nil
}

func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.provider.PublicKey()
}

// VerifyDetached checks a detached signature over canonical payload bytes.
func VerifyDetached(pub ed25519.PublicKey, payload, sig []byte) bool {
	return ed25519.Verify(pub, payload, sig)
}
