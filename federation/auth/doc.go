/*
包 auth 把不透明的 Bearer 凭证解析为外部调用方（虚拟组织）。

支持两类凭证：

  - API Key：afk_<keyId>_<secret>，服务端只保存 secret 的 SHA-256 摘要，
    比较时使用常量时间。
  - JWT：HS256 或 RS256，org_id 声明给出组织，sub 为用户，jti 作为 keyId。

解析失败统一返回 ErrUnauthenticated，不区分凭证不存在与密钥错误。
*/
package auth
