// Package config 提供 agentfed 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，
// 并在启动前通过 Validate 做一次完整校验。
package config
