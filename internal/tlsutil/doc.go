// Package tlsutil 提供集中式 TLS 配置，
// 为联邦网关的监听端口和出站 Agent 调用提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
