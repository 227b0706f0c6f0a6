// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package telemetry 初始化 OpenTelemetry 的 trace 与 metric 导出，
// 并定义联邦 RPC span 使用的属性键。未启用时全局 provider 保持 noop。
package telemetry
