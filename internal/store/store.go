package store

import (
	"sort"
	"sync"
	"time"

	"tri-arb-go/market"
)

// EventSink 接收快照写入事件（日志/指标），在锁外调用。
type EventSink func(string, map[string]interface{})

// Store 交易所 → 最新价格向量。
// 每个交易所键只由自己的连接器写入；写入是整向量替换，读者看到的要么是旧快照要么是新快照。
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]snapshot

	sink EventSink
}

type snapshot struct {
	pairs     []market.PairPrice
	updatedAt time.Time
}

func New(sink EventSink) *Store {
	return &Store{
		snapshots: make(map[string]snapshot),
		sink:      sink,
	}
}

// Write 用 pairs 的副本原子替换该交易所的整个向量。
// 调用方之后修改 pairs 不影响已写入的快照。
func (s *Store) Write(exchange string, pairs []market.PairPrice) {
	cp := make([]market.PairPrice, len(pairs))
	copy(cp, pairs)
	now := time.Now()

	s.mu.Lock()
	s.snapshots[exchange] = snapshot{pairs: cp, updatedAt: now}
	s.mu.Unlock()

	s.logEvent("snapshot_write", map[string]interface{}{
		"exchange": exchange,
		"pairs":    len(cp),
	})
}

// Read 拼接所请求交易所的当前向量；未知或尚无数据的交易所不贡献任何条目。
func (s *Store) Read(exchanges []string) []market.PairPrice {
	s.mu.RLock()
	n := 0
	for _, ex := range exchanges {
		n += len(s.snapshots[ex].pairs)
	}
	out := make([]market.PairPrice, 0, n)
	seen := make(map[string]struct{}, len(exchanges))
	for _, ex := range exchanges {
		if _, dup := seen[ex]; dup {
			continue
		}
		seen[ex] = struct{}{}
		out = append(out, s.snapshots[ex].pairs...)
	}
	s.mu.RUnlock()
	return out
}

// Exchanges 已有快照的交易所（排序后）。
func (s *Store) Exchanges() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.snapshots))
	for ex := range s.snapshots {
		out = append(out, ex)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Len 该交易所当前快照条数。
func (s *Store) Len(exchange string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots[exchange].pairs)
}

// UpdatedAt 最近一次写入时间；从未写入返回零值。
func (s *Store) UpdatedAt(exchange string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshots[exchange].updatedAt
}

func (s *Store) logEvent(event string, fields map[string]interface{}) {
	if s == nil || s.sink == nil {
		return
	}
	s.sink(event, fields)
}
