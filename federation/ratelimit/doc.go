/*
包 ratelimit 提供面向调用方的固定窗口限流。

Limiter 是可注入的接口：MemoryLimiter 为单进程内存实现（可注入时钟，
互斥锁保护的窗口表，过期窗口随调用惰性清理）；RedisLimiter 借助
internal/cache 的 INCR+PEXPIRE 脚本在多实例间共享计数。

内存实现只做尽力而为的滥用防护，水平扩展时每个实例独立计数。
*/
package ratelimit
