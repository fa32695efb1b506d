package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// SignatureLength is r || s || v.
const SignatureLength = 65

// Signer holds a secp256k1 key and signs transaction digests with it.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return FromECDSA(pk), nil
}

// FromECDSA wraps an existing key.
func FromECDSA(pk *ecdsa.PrivateKey) *Signer {
	return &Signer{privateKey: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}
}

// GenerateSigner creates a signer around a fresh random key.
func GenerateSigner() (*Signer, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: generating key: %w", err)
	}
	return FromECDSA(pk), nil
}

// Address returns the address derived from the signer's public key.
func (s *Signer) Address() domain.Address {
	return s.address
}

// PrivateKeyHex returns the key without 0x prefix, for sealing to disk.
func (s *Signer) PrivateKeyHex() string {
	return common.Bytes2Hex(ethcrypto.FromECDSA(s.privateKey))
}

// SignDigest signs a 32-byte digest. v is 0 or 1.
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing: %w", err)
	}
	return sig, nil
}

// RecoverAddress returns the address whose key produced sig over digest.
// A v of 27/28 is accepted as well as 0/1.
func RecoverAddress(digest, sig []byte) (domain.Address, error) {
	if len(sig) != SignatureLength {
		return domain.ZeroAddress, fmt.Errorf("crypto/signer: signature is %d bytes: %w", len(sig), domain.ErrInvalidSignature)
	}
	normalized := append([]byte(nil), sig...)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, normalized)
	if err != nil {
		return domain.ZeroAddress, fmt.Errorf("crypto/signer: recover: %v: %w", err, domain.ErrInvalidSignature)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
