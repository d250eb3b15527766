// Package ed25519signer is a reference pkg/signer.I implementation over
// stdlib crypto/ed25519. The Signer is named out-of-core-scope by the spec
// (§1 "external collaborator"), so this concrete implementation is properly
// built on the standard library rather than the teacher's secp256k1
// p256k/btcec stack (see DESIGN.md) — there is no ecosystem library to
// ground a reference signer on when the real one is explicitly someone
// else's concern.
package ed25519signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"orly.dev/relaycore/internal/context"
	"orly.dev/relaycore/pkg/nostrcore/event"
	"orly.dev/relaycore/pkg/signer"
)

// Signer is a single-keypair ed25519 signer.I.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// New generates a fresh random keypair.
func New() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Signer{priv: priv, pub: pub}, nil
}

// NewFromSeed derives a deterministic keypair from a 32-byte seed.
func NewFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519signer: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Pub returns the hex-encoded public key.
func (s *Signer) Pub() string { return hex.EncodeToString(s.pub) }

// Sign completes synchronously but honors the asynchronous one-shot
// contract of signer.I: the result channel receives exactly one Result (or
// none, if ctx is already cancelled) and is then closed.
func (s *Signer) Sign(ctx context.T, u *event.UnsignedEvent) <-chan signer.Result {
	out := make(chan signer.Result, 1)
	go func() {
		defer close(out)
		select {
		case <-ctx.Done():
			return
		default:
		}
		idBytes := u.IDBytes()
		sig := ed25519.Sign(s.priv, idBytes)
		ev := &event.E{
			ID:        hex.EncodeToString(idBytes),
			Author:    s.Pub(),
			CreatedAt: u.CreatedAt,
			Kind:      u.Kind,
			Tags:      u.Tags,
			Content:   u.Content,
			Sig:       hex.EncodeToString(sig),
		}
		select {
		case out <- signer.Result{Event: ev}:
		case <-ctx.Done():
		}
	}()
	return out
}

// Verify reports whether ev's signature is a valid ed25519 signature by
// ev's claimed author over ev's ID digest.
func (s *Signer) Verify(ev *event.E) (bool, error) {
	pubBytes, err := hex.DecodeString(ev.Author)
	if err != nil {
		return false, fmt.Errorf("ed25519signer: bad author hex: %w", err)
	}
	if len(pubBytes) != ed25519.PublicKeySize {
		return false, fmt.Errorf("ed25519signer: author key wrong size: %d", len(pubBytes))
	}
	sigBytes, err := hex.DecodeString(ev.Sig)
	if err != nil {
		return false, fmt.Errorf("ed25519signer: bad sig hex: %w", err)
	}
	idBytes, err := hex.DecodeString(ev.ID)
	if err != nil {
		return false, fmt.Errorf("ed25519signer: bad id hex: %w", err)
	}
	return ed25519.Verify(ed25519.PublicKey(pubBytes), idBytes, sigBytes), nil
}
