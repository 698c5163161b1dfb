// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package escrow seals root seed material for offline recovery. It
// wraps filippo.io/age for the specific operations warrant needs:
// encrypt a seed to one or more x25519 recipients (the operator's
// offline identity) or to a scrypt passphrase, and decrypt it back
// during chain recovery.
//
// The operator and account root seeds are only needed at provisioning
// and rotation time. Sealing them and deleting the plaintext from the
// local store contains the blast radius of a compromised issuing node:
// a stolen local area then yields only per-role signing keys, which
// can be rotated without rebuilding the chain.
//
// Seed plaintext moves through *secret.Buffer values (mmap-backed,
// zeroed on close); ciphertext is base64 for storage alongside the
// other store artifacts.
package escrow

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/bureau-foundation/warrant/lib/secret"
)

// Keypair holds an age x25519 escrow keypair. The identity string is
// held in a secret.Buffer; the recipient is a plain string, safe to
// record in provisioning specs.
type Keypair struct {
	// Identity is the AGE-SECRET-KEY-1... string. Generated once,
	// printed for offline storage, never written to the key store.
	Identity *secret.Buffer

	// Recipient is the corresponding age1... public key.
	Recipient string
}

// Close releases the identity buffer. Idempotent.
func (k *Keypair) Close() error {
	if k.Identity != nil {
		return k.Identity.Close()
	}
	return nil
}

// GenerateKeypair generates a new escrow keypair. The caller must
// call Close on the result when done.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("escrow: generating keypair: %w", err)
	}

	identityBuffer, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("escrow: protecting identity: %w", err)
	}

	return &Keypair{
		Identity:  identityBuffer,
		Recipient: identity.Recipient().String(),
	}, nil
}

// ParseRecipient validates an age public key string. Use before
// recording a recipient in a provisioning spec.
func ParseRecipient(recipient string) error {
	if _, err := age.ParseX25519Recipient(recipient); err != nil {
		return fmt.Errorf("escrow: invalid recipient: %w", err)
	}
	return nil
}

// Seal encrypts seed material to one or more x25519 recipients and
// returns base64 ciphertext. At least one recipient is required.
func Seal(plaintext []byte, recipients []string) (string, error) {
	if len(recipients) == 0 {
		return "", fmt.Errorf("escrow: at least one recipient is required")
	}

	parsed := make([]age.Recipient, 0, len(recipients))
	for _, recipient := range recipients {
		r, err := age.ParseX25519Recipient(recipient)
		if err != nil {
			return "", fmt.Errorf("escrow: parsing recipient %q: %w", recipient, err)
		}
		parsed = append(parsed, r)
	}
	return seal(plaintext, parsed...)
}

// SealWithPassphrase encrypts seed material to a scrypt passphrase.
// For deployments without an offline age identity: the passphrase is
// prompted interactively and never stored.
func SealWithPassphrase(plaintext []byte, passphrase *secret.Buffer) (string, error) {
	recipient, err := age.NewScryptRecipient(passphrase.String())
	if err != nil {
		return "", fmt.Errorf("escrow: creating scrypt recipient: %w", err)
	}
	return seal(plaintext, recipient)
}

func seal(plaintext []byte, recipients ...age.Recipient) (string, error) {
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return "", fmt.Errorf("escrow: creating encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("escrow: writing plaintext: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("escrow: finalizing encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// Unseal decrypts base64 ciphertext with an x25519 identity. The
// identity buffer is borrowed, not closed. The caller must close the
// returned buffer.
func Unseal(ciphertext string, identity *secret.Buffer) (*secret.Buffer, error) {
	parsed, err := age.ParseX25519Identity(identity.String())
	if err != nil {
		return nil, fmt.Errorf("escrow: parsing identity: %w", err)
	}
	return unseal(ciphertext, parsed)
}

// UnsealWithPassphrase decrypts base64 ciphertext sealed with
// SealWithPassphrase.
func UnsealWithPassphrase(ciphertext string, passphrase *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.NewScryptIdentity(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("escrow: creating scrypt identity: %w", err)
	}
	return unseal(ciphertext, identity)
}

func unseal(ciphertext string, identity age.Identity) (*secret.Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("escrow: decoding ciphertext: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(raw), identity)
	if err != nil {
		return nil, fmt.Errorf("escrow: decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("escrow: reading plaintext: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("escrow: decrypted payload is empty")
	}

	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("escrow: protecting plaintext: %w", err)
	}
	return buffer, nil
}
