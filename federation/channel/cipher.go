package channel

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize 通道密钥长度（字节）
const KeySize = 32

// 支持的 AEAD 算法
const (
	AlgorithmAESGCM  = "aes-256-gcm"
	AlgorithmXChaCha = "xchacha20-poly1305"
)

var (
	ErrInvalidKey       = errors.New("channel: invalid key size")
	ErrUnknownAlgorithm = errors.New("channel: unknown algorithm")
)

// Key 对称通道密钥
type Key []byte

// NewKey 生成随机通道密钥。
func NewKey() (Key, error) {
	k := make(Key, KeySize)
	if _, err := rand.Read(k); err != nil {
		return nil, fmt.Errorf("generate channel key: %w", err)
	}
	return k, nil
}

// EncryptedPayload AEAD 密文三元组，JSON 中各字段为 base64。
type EncryptedPayload struct {
	Algorithm  string `json:"alg,omitempty"`
	IV         []byte `json:"iv"`
	Tag        []byte `json:"tag"`
	Ciphertext []byte `json:"ciphertext"`
}

// Encode 序列化为可落库的字符串。
func (p *EncryptedPayload) Encode() string {
	b, _ := json.Marshal(p)
	return base64.StdEncoding.EncodeToString(b)
}

// DecodePayload 解析 Encode 的输出。
func DecodePayload(s string) (*EncryptedPayload, bool) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, false
	}
	var p EncryptedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	return &p, true
}

// Cipher AEAD 算法
type Cipher interface {
	Name() string
	Encrypt(plaintext []byte, key Key) (*EncryptedPayload, error)
	Decrypt(p *EncryptedPayload, key Key) ([]byte, bool)
}

// NewCipher 按名称返回算法实现，空名称为 AES-256-GCM。
func NewCipher(name string) (Cipher, error) {
	switch name {
	case "", AlgorithmAESGCM:
		return aesGCM{}, nil
	case AlgorithmXChaCha:
		return xchacha{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, name)
}

// Encrypt 使用默认算法加密。
func Encrypt(plaintext []byte, key Key) (*EncryptedPayload, error) {
	return aesGCM{}.Encrypt(plaintext, key)
}

// Decrypt 按密文记录的算法解密，任何失败都返回 false。
func Decrypt(p *EncryptedPayload, key Key) ([]byte, bool) {
	if p == nil {
		return nil, false
	}
	c, err := NewCipher(p.Algorithm)
	if err != nil {
		return nil, false
	}
	return c.Decrypt(p, key)
}

type aesGCM struct{}

func (aesGCM) Name() string { return AlgorithmAESGCM }

func (aesGCM) aead(key Key) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (c aesGCM) Encrypt(plaintext []byte, key Key) (*EncryptedPayload, error) {
	aead, err := c.aead(key)
	if err != nil {
		return nil, err
	}
	return seal(aead, AlgorithmAESGCM, plaintext)
}

func (c aesGCM) Decrypt(p *EncryptedPayload, key Key) ([]byte, bool) {
	aead, err := c.aead(key)
	if err != nil {
		return nil, false
	}
	return open(aead, p)
}

type xchacha struct{}

func (xchacha) Name() string { return AlgorithmXChaCha }

func (xchacha) aead(key Key) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return chacha20poly1305.NewX(key)
}

func (c xchacha) Encrypt(plaintext []byte, key Key) (*EncryptedPayload, error) {
	aead, err := c.aead(key)
	if err != nil {
		return nil, err
	}
	return seal(aead, AlgorithmXChaCha, plaintext)
}

func (c xchacha) Decrypt(p *EncryptedPayload, key Key) ([]byte, bool) {
	aead, err := c.aead(key)
	if err != nil {
		return nil, false
	}
	return open(aead, p)
}

// seal 把 AEAD 输出拆成 ciphertext 与 tag 两段。
func seal(aead cipher.AEAD, alg string, plaintext []byte) (*EncryptedPayload, error) {
	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	out := aead.Seal(nil, iv, plaintext, nil)
	split := len(out) - aead.Overhead()
	return &EncryptedPayload{
		Algorithm:  alg,
		IV:         iv,
		Tag:        out[split:],
		Ciphertext: out[:split],
	}, nil
}

func open(aead cipher.AEAD, p *EncryptedPayload) ([]byte, bool) {
	if p == nil || len(p.IV) != aead.NonceSize() || len(p.Tag) != aead.Overhead() {
		return nil, false
	}
	sealed := make([]byte, 0, len(p.Ciphertext)+len(p.Tag))
	sealed = append(sealed, p.Ciphertext...)
	sealed = append(sealed, p.Tag...)
	plaintext, err := aead.Open(nil, p.IV, sealed, nil)
	if err != nil {
		return nil, false
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, true
}
