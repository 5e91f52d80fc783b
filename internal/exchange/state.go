package exchange

import "time"

// State 连接器状态机：Disconnected → Connecting → Subscribed → Streaming → Disconnected。
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	default:
		return "disconnected"
	}
}

// Backoff 连接失败时的指数退避，Next 返回本次等待时间并将下一次翻倍（不超过 Max）。
// 非并发安全，由单个 Run 循环持有。
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	cur     time.Duration
}

func (b *Backoff) Next() time.Duration {
	if b.Initial <= 0 {
		b.Initial = time.Second
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.cur <= 0 {
		b.cur = b.Initial
	}
	d := b.cur
	b.cur *= 2
	if b.cur > b.Max {
		b.cur = b.Max
	}
	return d
}

// Reset 连接成功后回到初始值。
func (b *Backoff) Reset() {
	b.cur = 0
}
