package state

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/picklr-io/sitestack/internal/ir"
)

const (
	// EncryptionKeyEnvVar holds the passphrase state is sealed with.
	EncryptionKeyEnvVar = "SITESTACK_STATE_ENCRYPTION_KEY"

	sealAlgorithm = "AES-256-GCM"
)

// sealedState is how an encrypted state is stored. Lineage and serial stay
// readable so backends and operators can tell states apart, and both are
// authenticated as additional data: an envelope whose lineage or serial was
// edited, or whose ciphertext came from another project, fails to open.
type sealedState struct {
	Algorithm  string `json:"algorithm"`
	Lineage    string `json:"lineage"`
	Serial     int    `json:"serial"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func (s *sealedState) additionalData() []byte {
	return []byte(s.Lineage + "/" + strconv.Itoa(s.Serial))
}

// IsEncrypted reports whether raw is a sealed state envelope.
func IsEncrypted(raw []byte) bool {
	var probe struct {
		Algorithm string `json:"algorithm"`
	}
	return json.Unmarshal(raw, &probe) == nil && probe.Algorithm == sealAlgorithm
}

// seal encrypts the serialized st under key.
func seal(st *ir.State, plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	env := sealedState{
		Algorithm: sealAlgorithm,
		Lineage:   st.Lineage,
		Serial:    st.Serial,
		Nonce:     make([]byte, gcm.NonceSize()),
	}
	if _, err := rand.Read(env.Nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	env.Ciphertext = gcm.Seal(nil, env.Nonce, plaintext, env.additionalData())

	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// unseal opens an envelope and checks that the state inside belongs to it.
func unseal(raw, key []byte) (*ir.State, error) {
	if key == nil {
		return nil, fmt.Errorf("state is encrypted but %s is not set", EncryptionKeyEnvVar)
	}
	var env sealedState
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to parse encrypted state: %w", err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("encrypted state has a %d byte nonce, want %d", len(env.Nonce), gcm.NonceSize())
	}
	plaintext, err := gcm.Open(nil, env.Nonce, env.Ciphertext, env.additionalData())
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state for lineage %s (wrong key or altered envelope): %w", env.Lineage, err)
	}

	var st ir.State
	if err := json.Unmarshal(plaintext, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	if st.Lineage != env.Lineage || st.Serial != env.Serial {
		return nil, fmt.Errorf("encrypted state is lineage %s serial %d but its envelope says %s serial %d",
			st.Lineage, st.Serial, env.Lineage, env.Serial)
	}
	return &st, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// encryptionKey stretches the passphrase to an AES-256 key. Nil when unset.
func encryptionKey() []byte {
	pass := os.Getenv(EncryptionKeyEnvVar)
	if pass == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(pass))
	return sum[:]
}
