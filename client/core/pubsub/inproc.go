package pubsub

// NewInProcess 创建进程内连接并启动服务
//
// 返回的 ConnectionInterface 由调用方驱动：从 Outgoing 读取请求报文，
// 用 Deliver 回送响应与推送。用于嵌入式节点和测试。
func NewInProcess(opts Options) (*Frontend, *ConnectionInterface) {
	handle, iface := NewConnection(opts.InstructionBuffer)
	return Spawn(handle, opts), iface
}
