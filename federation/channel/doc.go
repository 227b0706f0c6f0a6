/*
包 channel 提供协议级对称加密通道。

每个协议在首次进入 ACTIVE 时生成唯一的通道密钥，之后不再轮换。
消息内容以 AEAD 加密（默认 AES-256-GCM，可选 XChaCha20-Poly1305），
每次加密使用新的随机 nonce。解密失败一律返回 false，不产生错误。

通道密钥与组织签名私钥在落库前都经 Vault 封装，Vault 的密钥由配置的
主密钥经 HKDF-SHA256 派生。KeyStore 为读多写少的进程级缓存，
并发未命中通过 singleflight 合并为一次加载。
*/
package channel
