/*
包 signing 提供组织级 Ed25519 签名与按版本的公钥解析。

签名覆盖解密后的明文，而不是加密信封。每个组织的密钥对带单调递增版本号，
轮换后旧版本永久保留，历史消息始终可以按发送时的版本验证。

Resolver 的缓存以 (组织, 版本) 复合键索引，仅在一次批量验证内有效，
不跨请求共享，因此轮换在下一批次立刻生效。
*/
package signing
