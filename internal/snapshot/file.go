package snapshot

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/roach88/orderkeep/internal/cipher"
)

// ErrCorrupt is returned when a snapshot file is not a gzip stream.
var ErrCorrupt = errors.New("snapshot file is corrupt")

// Seal encrypts script and wraps the token in a gzip container: the exact
// byte layout of a snapshot file.
func Seal(key *cipher.Key, script []byte) ([]byte, error) {
	token, err := cipher.Encrypt(key, script)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(token); err != nil {
		return nil, fmt.Errorf("seal: gzip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("seal: gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Unseal reverses Seal. A wrong key or tampered token yields
// cipher.ErrAuthentication; bytes that are not gzip yield ErrCorrupt.
func Unseal(key *cipher.Key, data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer zr.Close()

	token, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	script, err := cipher.Decrypt(key, token)
	if err != nil {
		return nil, err
	}
	return script, nil
}

// Save seals script and atomically replaces the file at path. The new
// content is written to a temporary file in the same directory, synced and
// renamed over path, so readers see either the old or the new snapshot.
func Save(path string, key *cipher.Key, script []byte) error {
	data, err := Seal(key, script)
	if err != nil {
		return err
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("save snapshot: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("save snapshot: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save snapshot: close: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("save snapshot: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("save snapshot: rename: %w", err)
	}
	committed = true

	syncDir(dir)
	return nil
}

// Load reads the snapshot file at path and returns the decrypted script.
func Load(path string, key *cipher.Key) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	script, err := Unseal(key, data)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", path, err)
	}
	return script, nil
}

// syncDir flushes the rename to disk where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}
