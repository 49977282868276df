package sign

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AttestationClaims is the JWS payload attached to a decision record. The
// record itself travels separately; the token binds its id and canonical
// hash to an author under our signing key.
type AttestationClaims struct {
	RecordID   string `json:"record_id"`
	RecordHash string `json:"record_hash"`
	jwt.RegisteredClaims
}

const attestationIssuer = "datanet"

// Attest issues a compact JWS (EdDSA) binding recordID and the record's
// canonical hash to the author.
func (s *Signer) Attest(recordID, recordHash, author string, ttl time.Duration) (string, error) {
	mp, ok := s.provider.(*MemoryKeyProvider)
	if !ok {
		return "", fmt.Errorf("sign: provider does not expose a private key for JWS")
	}

	now := time.Now().UTC()
	claims := AttestationClaims{
		RecordID:   recordID,
		RecordHash: recordHash,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    attestationIssuer,
			Subject:   author,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(mp.PrivateKey())
	if err != nil {
		return "", fmt.Errorf("sign: issue attestation: %w", err)
	}
	return signed, nil
}

// VerifyAttestation parses and validates a compact JWS against the given
// public key, returning its claims.
func VerifyAttestation(tokenString string, pub ed25519.PublicKey) (*AttestationClaims, error) {
	claims := &AttestationClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("sign: unexpected signing method %q", t.Method.Alg())
			}
			return pub, nil
		},
		jwt.WithIssuer(attestationIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("sign: verify attestation: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("sign: attestation token invalid")
	}
	return claims, nil
}
