package signing

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// 签名对原文有效；原文或签名任意一个字节变化后校验失败
func TestProperty_SignatureSoundness(t *testing.T) {
	pub, priv, err := GenerateKey()
	require.NoError(t, err)

	rapid.Check(t, func(rt *rapid.T) {
		content := rapid.SliceOfN(rapid.Byte(), 1, 512).Draw(rt, "content")

		sig, err := Sign(content, priv)
		require.NoError(rt, err)
		require.True(rt, Verify(content, sig, pub))

		mutated := append([]byte(nil), content...)
		i := rapid.IntRange(0, len(mutated)-1).Draw(rt, "contentIndex")
		mutated[i] ^= byte(rapid.IntRange(1, 255).Draw(rt, "contentDelta"))
		require.False(rt, Verify(mutated, sig, pub))

		raw, err := base64.StdEncoding.DecodeString(sig)
		require.NoError(rt, err)
		j := rapid.IntRange(0, len(raw)-1).Draw(rt, "sigIndex")
		raw[j] ^= byte(rapid.IntRange(1, 255).Draw(rt, "sigDelta"))
		require.False(rt, Verify(content, base64.StdEncoding.EncodeToString(raw), pub))
	})
}

// 任意垃圾输入都不会 panic
func TestProperty_VerifyNeverPanics(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		content := rapid.SliceOf(rapid.Byte()).Draw(rt, "content")
		sig := rapid.String().Draw(rt, "sig")
		pub := rapid.SliceOf(rapid.Byte()).Draw(rt, "pub")
		require.NotPanics(rt, func() { Verify(content, sig, pub) })
	})
}
