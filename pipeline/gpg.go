package pipeline

import (
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/abrt/retrace-worker/internal/rerrors"
	"github.com/abrt/retrace-worker/plugins"
	"github.com/abrt/retrace-worker/task"
)

// GPGKeyString builds the space-separated, scheme-prefixed GPG-key
// string for release under plugin, including the rawhide fallback key
// (spec §4.4 "GPG-key string construction", §8 scenario S6).
func GPGKeyString(p *plugins.Plugin, release task.Release) string {
	return plugins.GPGKeys(p, release, "file://")
}

// ValidateGPGKeyFile parses path as an armored or binary OpenPGP key
// ring, failing fast before it is baked into a Containerfile/mock
// config rather than surfacing as an opaque dnf import error later.
func ValidateGPGKeyFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return rerrors.WithStackTrace(err)
	}
	defer f.Close()

	if _, err := openpgp.ReadArmoredKeyRing(f); err == nil {
		return nil
	}

	if _, err := f.Seek(0, 0); err != nil {
		return rerrors.WithStackTrace(err)
	}

	if _, err := openpgp.ReadKeyRing(f); err != nil {
		return rerrors.Errorf("gpg key %q is neither armored nor binary OpenPGP key material: %w", path, err)
	}

	return nil
}

// stripFileScheme converts a "file://" GPG key reference back to a
// filesystem path for local validation.
func stripFileScheme(key string) string {
	return strings.TrimPrefix(key, "file://")
}

// validateGPGKeys checks every space-separated, scheme-prefixed key in
// keys against ValidateGPGKeyFile, skipping references that use a
// scheme other than file:// (e.g. a future http:// key server), which
// this worker cannot validate locally.
func validateGPGKeys(keys string) error {
	for _, key := range strings.Fields(keys) {
		if !strings.HasPrefix(key, "file://") {
			continue
		}

		if err := ValidateGPGKeyFile(stripFileScheme(key)); err != nil {
			return err
		}
	}

	return nil
}
