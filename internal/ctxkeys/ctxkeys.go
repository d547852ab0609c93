package ctxkeys

// TraceIDKey 上下文中的追踪 ID，取值为捕获 ID
type TraceIDKey struct{}
