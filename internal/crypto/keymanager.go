// Package crypto signs transactions and keeps signing keys encrypted at
// rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	keyfileVersion   = 2
)

// keyfile is the on-disk format of a sealed key. Address is stored in the
// clear so a keyfile can be identified without the password.
type keyfile struct {
	Version    int    `json:"version"`
	Address    string `json:"address"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig says where LoadSigner finds a key.
type KeyConfig struct {
	// RawPrivateKey is a hex key; it wins over the keyfile when set.
	RawPrivateKey string
	KeyfilePath   string
	Password      string
}

// SealKey encrypts the signer's key with password using PBKDF2-SHA256 and
// AES-256-GCM.
func SealKey(s *Signer, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	out := keyfile{
		Version:    keyfileVersion,
		Address:    s.Address().Hex(),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, ethcrypto.FromECDSA(s.privateKey), nil)),
	}
	return json.MarshalIndent(out, "", "  ")
}

// OpenKey decrypts a keyfile produced by SealKey.
func OpenKey(data []byte, password string) (*Signer, error) {
	var kf keyfile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("crypto: parsing keyfile: %w", err)
	}
	if kf.Version != keyfileVersion {
		return nil, fmt.Errorf("crypto: unsupported keyfile version %d", kf.Version)
	}
	salt, err := base64.StdEncoding.DecodeString(kf.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(kf.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(kf.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	pk, err := ethcrypto.ToECDSA(plain)
	if err != nil {
		return nil, fmt.Errorf("crypto: keyfile holds an invalid key: %w", err)
	}
	s := FromECDSA(pk)
	if kf.Address != "" && kf.Address != s.Address().Hex() {
		return nil, fmt.Errorf("crypto: keyfile address %s does not match key %s", kf.Address, s.Address().Hex())
	}
	return s, nil
}

// LoadSigner resolves a signer from cfg: raw key first, then keyfile.
func LoadSigner(cfg KeyConfig) (*Signer, error) {
	if cfg.RawPrivateKey != "" {
		return NewSigner(cfg.RawPrivateKey)
	}
	if cfg.KeyfilePath != "" {
		data, err := os.ReadFile(cfg.KeyfilePath)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading keyfile: %w", err)
		}
		return OpenKey(data, cfg.Password)
	}
	return nil, errors.New("crypto: no key configured (set a raw key or a keyfile)")
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}
