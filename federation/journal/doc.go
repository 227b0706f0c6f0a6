/*
包 journal 实现联邦消息日志。

每次跨组织交换写一行 OUTBOUND 消息：请求与回复序列化为 JSON 后用协议
通道密钥加密，并以发送组织当前版本的 Ed25519 私钥对明文签名。
写入只发生在加密、签名、调用全部成功之后；请求上下文已取消时不落库。

会话查看按批次解密并校验签名。解密失败的消息 content 为 null，
签名无法校验时 signatureVerified 为 false，其余消息照常返回。
*/
package journal
