package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrInvalidPrivateKey 私钥长度不合法
var ErrInvalidPrivateKey = errors.New("signing: invalid private key")

// GenerateKey 生成 Ed25519 密钥对。
func GenerateKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return pub, priv, nil
}

// Sign 对内容签名，返回 base64 编码的签名。
func Sign(content []byte, priv ed25519.PrivateKey) (string, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return "", ErrInvalidPrivateKey
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, content)), nil
}

// Verify 校验签名，任何格式错误都返回 false。
func Verify(content []byte, signature string, pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, content, sig)
}
