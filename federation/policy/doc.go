/*
包 policy 实现协议治理策略引擎。

规则按顺序评估，任何一条都可以降级结论：

 1. 人工审批：协议要求人工审批而会话尚无审批记录 → blocked
 2. 数据分级：检测分级与调用方声明分级取较高者，超出协议上限时
    filtered；超出级数达到 BlockExcessLevels 时 blocked。
    非文本内容在不允许文件传输时 blocked。
 3. 请求量：按已落库的非 blocked 消息做滑动窗口计数，
    最近 1 小时或 24 小时达到上限 → blocked。上限为 0 表示不限。

blocked 会短路后续规则。结论在消息创建时写入，不会重新计算。
*/
package policy
