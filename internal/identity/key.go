// Package identity manages the session's long-lived Ed448 key pair.
package identity

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloudflare/circl/sign/ed448"
	log "github.com/sirupsen/logrus"
)

// KeyFileName is the private key file inside the data directory. The
// file holds the raw 57-byte Ed448 seed and must never leave the host.
const KeyFileName = "DO_NOT_SEND_TO_OTHER_PEOPLE_secretkey.ykr"

// Load reads the key file under dataDir, creating it with a fresh key
// when it does not exist yet. Any other failure is fatal to the caller.
func Load(dataDir string) (ed448.PrivateKey, ed448.PublicKey, error) {
	path := filepath.Join(dataDir, KeyFileName)

	seed, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		seed = make([]byte, ed448.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, nil, fmt.Errorf("generate key: %w", err)
		}
		if err := os.WriteFile(path, seed, 0600); err != nil {
			return nil, nil, fmt.Errorf("write key file: %w", err)
		}
		log.WithField("path", path).Info("generated new identity key")
		seed, err = os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("reopen key file: %w", err)
		}
	} else if err != nil {
		return nil, nil, fmt.Errorf("read key file: %w", err)
	}

	if len(seed) != ed448.SeedSize {
		return nil, nil, fmt.Errorf("key file %s is %d bytes, want %d", path, len(seed), ed448.SeedSize)
	}

	priv := ed448.NewKeyFromSeed(seed)
	return priv, priv.Public().(ed448.PublicKey), nil
}
