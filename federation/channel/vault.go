package channel

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const vaultInfo = "agentfed/vault/v1"

// MinMasterKeyLength 主密钥最短长度
const MinMasterKeyLength = 32

var (
	ErrWeakMasterKey = errors.New("channel: master key too short")
	ErrSealedCorrupt = errors.New("channel: sealed value cannot be opened")
)

// Vault 用主密钥封装落库的密钥材料
type Vault struct {
	key    Key
	cipher Cipher
}

// NewVault 由主密钥经 HKDF 派生封装密钥。
func NewVault(masterKey string) (*Vault, error) {
	if len(masterKey) < MinMasterKeyLength {
		return nil, ErrWeakMasterKey
	}
	key := make(Key, KeySize)
	r := hkdf.New(sha256.New, []byte(masterKey), nil, []byte(vaultInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive vault key: %w", err)
	}
	return &Vault{key: key, cipher: aesGCM{}}, nil
}

// Seal 加密密钥材料。
func (v *Vault) Seal(secret []byte) (string, error) {
	p, err := v.cipher.Encrypt(secret, v.key)
	if err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}
	return p.Encode(), nil
}

// Open 解开 Seal 的输出。
func (v *Vault) Open(sealed string) ([]byte, error) {
	p, ok := DecodePayload(sealed)
	if !ok {
		return nil, ErrSealedCorrupt
	}
	secret, ok := v.cipher.Decrypt(p, v.key)
	if !ok {
		return nil, ErrSealedCorrupt
	}
	return secret, nil
}

// MintChannelKey 生成新的通道密钥并返回其封装形式。
func (v *Vault) MintChannelKey() (Key, string, error) {
	key, err := NewKey()
	if err != nil {
		return nil, "", err
	}
	sealed, err := v.Seal(key)
	if err != nil {
		return nil, "", err
	}
	return key, sealed, nil
}
