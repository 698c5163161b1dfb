// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/warrant/lib/secret"
	"github.com/bureau-foundation/warrant/lib/trust"
)

// Store errors. ErrNotFound and ErrUnreadable are deliberately
// distinct: "the key does not exist" and "the key exists but cannot be
// read" call for different operator responses.
var (
	ErrNotFound            = errors.New("keystore: not found")
	ErrUnreadable          = errors.New("keystore: found but unreadable")
	ErrIntegrityViolation  = errors.New("keystore: private key material in shared artifact")
	ErrPermissionViolation = errors.New("keystore: permission check failed")
)

// Store manages the two disjoint credential areas:
//
//   - The shared area holds public trust anchors and narrowly-scoped
//     guard credentials. Everything in it is safe to distribute to
//     every host; every write is screened for private key material.
//   - The local area holds root and signing-key seeds. It never
//     leaves the issuing node; directories are 0700, files 0600, and
//     ownership must match the running process.
//
// A Store is an explicitly injected handle — there is no package-level
// default. Writes are serialized; reads run concurrently.
type Store struct {
	mu        sync.RWMutex
	sharedDir string
	localDir  string
}

// Layout constants for the local area.
const (
	// shardDirName is the root of the public-key-prefix sharded seed
	// layout: keys/<first byte>/<next two bytes>/<public key>.nk.
	shardDirName = "keys"

	// seedFileSuffix is the extension for raw seed files.
	seedFileSuffix = ".nk"
)

// New opens (creating if necessary) a Store over the two directory
// roots. The shared root is created 0755, the local root 0700. Fails
// with ErrPermissionViolation if an existing local root is readable by
// group/other or owned by a different user.
func New(sharedDir, localDir string) (*Store, error) {
	if sharedDir == "" || localDir == "" {
		return nil, fmt.Errorf("keystore: both shared and local directories are required")
	}
	if err := os.MkdirAll(sharedDir, 0o755); err != nil {
		return nil, fmt.Errorf("keystore: creating shared root: %w", err)
	}
	if err := os.MkdirAll(localDir, 0o700); err != nil {
		return nil, fmt.Errorf("keystore: creating local root: %w", err)
	}
	if err := checkLocalRoot(localDir); err != nil {
		return nil, err
	}
	return &Store{sharedDir: sharedDir, localDir: localDir}, nil
}

// checkLocalRoot verifies the local root's mode and ownership.
func checkLocalRoot(dir string) error {
	var stat unix.Stat_t
	if err := unix.Stat(dir, &stat); err != nil {
		return fmt.Errorf("keystore: stat local root: %w", err)
	}
	if stat.Uid != uint32(os.Getuid()) {
		return fmt.Errorf("%w: local root %s owned by uid %d, not %d",
			ErrPermissionViolation, dir, stat.Uid, os.Getuid())
	}
	if stat.Mode&0o077 != 0 {
		return fmt.Errorf("%w: local root %s is group/other accessible (mode %04o)",
			ErrPermissionViolation, dir, stat.Mode&0o777)
	}
	return nil
}

// SharedDir returns the shared root path. Callers use it to point the
// external transport at trust anchor files; nothing in it is secret.
func (s *Store) SharedDir() string { return s.sharedDir }

// LocalDir returns the local root path.
func (s *Store) LocalDir() string { return s.localDir }

// PutShared writes a distributable artifact. The write is rejected
// with ErrIntegrityViolation if the artifact contains anything that
// looks like private key material — a leak into the shared area is a
// configuration bug severe enough to halt on, never skip.
func (s *Store) PutShared(name string, data []byte) error {
	if err := ScanPrivateMaterial(data); err != nil {
		return fmt.Errorf("shared artifact %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(filepath.Join(s.sharedDir, name), data, 0o644, 0o755)
}

// PutSharedCredentials writes a guard credential bundle (*.creds) to
// the shared area. Credential bundles carry a user seed by design, so
// only signing material (operator/account seeds, age identities, PEM
// keys) is screened. The name must end in ".creds" so VerifyIntegrity
// applies the matching rule on later sweeps.
func (s *Store) PutSharedCredentials(name string, data []byte) error {
	if !strings.HasSuffix(name, credsFileSuffix) {
		return fmt.Errorf("keystore: credential bundle %q must end in %s", name, credsFileSuffix)
	}
	if err := ScanSigningMaterial(data); err != nil {
		return fmt.Errorf("shared credentials %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(filepath.Join(s.sharedDir, name), data, 0o644, 0o755)
}

// GetShared reads a distributable artifact.
func (s *Store) GetShared(name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.sharedDir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: shared artifact %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: shared artifact %q: %v", ErrUnreadable, name, err)
	}
	return data, nil
}

// HasShared reports whether a shared artifact exists.
func (s *Store) HasShared(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(filepath.Join(s.sharedDir, name))
	return err == nil
}

// PutLocal writes a private artifact with owner-only permissions.
func (s *Store) PutLocal(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(filepath.Join(s.localDir, name), data, 0o600, 0o700)
}

// GetLocal reads a private artifact into a protected buffer.
func (s *Store) GetLocal(name string) (*secret.Buffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readSeedFile(filepath.Join(s.localDir, name), name)
}

// RemoveLocal deletes a private artifact. Removing a missing artifact
// is not an error. Used by escrow to purge plaintext seeds after
// sealing.
func (s *Store) RemoveLocal(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.localDir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("keystore: removing %s: %w", name, err)
	}
	return nil
}

// HasLocal reports whether a private artifact exists.
func (s *Store) HasLocal(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(filepath.Join(s.localDir, name))
	return err == nil
}

// StoreSigningKey writes a signing key seed to the local area in both
// layouts: named by role under the operator/account directory, and
// sharded by public key for ExtractSigningKey lookups. The seed slice
// is zeroed before return.
func (s *Store) StoreSigningKey(operator, account, role string, publicKey string, seed []byte) error {
	if err := trust.ValidateAccountKey(publicKey); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rolePath := filepath.Join(s.localDir, operator, account, role+seedFileSuffix)
	if err := writeFileAtomic(rolePath, seed, 0o600, 0o700); err != nil {
		secret.Zero(seed)
		return err
	}
	shardPath := filepath.Join(s.localDir, shardPathFor(publicKey))
	err := writeFileAtomic(shardPath, seed, 0o600, 0o700)
	secret.Zero(seed)
	return err
}

// SigningKeySeed returns the seed for the account's role-named signing
// key. The caller owns the returned buffer.
func (s *Store) SigningKeySeed(operator, account, role string) (*secret.Buffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := filepath.Join(operator, account, role+seedFileSuffix)
	return readSeedFile(filepath.Join(s.localDir, name), name)
}

// ExtractSigningKey looks up a signing key seed by its public key in
// the sharded layout. The account public key is validated as a
// cross-check on the caller's bookkeeping; the shard path derives from
// the signing key itself.
//
// Fails with ErrNotFound when no seed file exists for the key, and
// ErrUnreadable when the file exists but cannot be read — the two
// cases have different remediations (re-provision vs fix permissions).
func (s *Store) ExtractSigningKey(accountPublicKey, signingPublicKey string) (*secret.Buffer, error) {
	if err := trust.ValidateAccountKey(accountPublicKey); err != nil {
		return nil, err
	}
	if err := trust.ValidateAccountKey(signingPublicKey); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	relative := shardPathFor(signingPublicKey)
	return readSeedFile(filepath.Join(s.localDir, relative), relative)
}

// RemoveSigningKey deletes both layouts of a signing key seed. Used by
// revocation: after removal, ExtractSigningKey fails with ErrNotFound
// and the decision service fails closed.
func (s *Store) RemoveSigningKey(operator, account, role string, publicKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rolePath := filepath.Join(s.localDir, operator, account, role+seedFileSuffix)
	shardPath := filepath.Join(s.localDir, shardPathFor(publicKey))

	var firstError error
	for _, path := range []string{rolePath, shardPath} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) && firstError == nil {
			firstError = fmt.Errorf("keystore: removing %s: %w", path, err)
		}
	}
	return firstError
}

// shardPathFor maps a public key to its sharded seed path:
// keys/<first byte>/<next two bytes>/<public key>.nk. The prefix
// sharding keeps directory fan-out bounded with many keys.
func shardPathFor(publicKey string) string {
	if len(publicKey) < 3 {
		return filepath.Join(shardDirName, publicKey+seedFileSuffix)
	}
	return filepath.Join(shardDirName, publicKey[:1], publicKey[1:3], publicKey+seedFileSuffix)
}

// readSeedFile loads a local file into a protected buffer, mapping
// error classes. name is the store-relative name used in messages.
func readSeedFile(path, name string) (*secret.Buffer, error) {
	buffer, err := secret.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, name, err)
	}
	return buffer, nil
}

// writeFileAtomic writes data via a temp file and rename so concurrent
// readers never observe a partial artifact. Parent directories are
// created with dirMode.
func writeFileAtomic(path string, data []byte, fileMode, dirMode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("keystore: creating %s: %w", dir, err)
	}

	temp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("keystore: creating temp file in %s: %w", dir, err)
	}
	tempPath := temp.Name()
	// Best-effort cleanup on any failure path.
	defer os.Remove(tempPath)

	if err := temp.Chmod(fileMode); err != nil {
		temp.Close()
		return fmt.Errorf("keystore: chmod %s: %w", tempPath, err)
	}
	if _, err := temp.Write(data); err != nil {
		temp.Close()
		return fmt.Errorf("keystore: writing %s: %w", tempPath, err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("keystore: closing %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("keystore: renaming into place: %w", err)
	}
	return nil
}

// ListShared returns the store-relative names of all shared artifacts,
// sorted by the filesystem walk order (lexical within directories).
func (s *Store) ListShared() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	err := filepath.WalkDir(s.sharedDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			return nil
		}
		relative, err := filepath.Rel(s.sharedDir, path)
		if err != nil {
			return err
		}
		names = append(names, relative)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("keystore: walking shared root: %w", err)
	}
	return names, nil
}
