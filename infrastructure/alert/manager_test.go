package alert

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChannel struct {
	name   string
	alerts []Alert
	err    error
}

func (c *mockChannel) Send(a Alert) error {
	if c.err != nil {
		return c.err
	}
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *mockChannel) Name() string { return c.name }

func TestManagerSend(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	m := NewManager(time.Minute, ch)
	assert.Equal(t, []string{"mock"}, m.Channels())

	sent, err := m.Send(Alert{Level: LevelInfo, Message: "hello", Fields: map[string]interface{}{"k": "v"}})
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, ch.alerts, 1)
	assert.False(t, ch.alerts[0].Timestamp.IsZero())
	assert.Equal(t, "v", ch.alerts[0].Fields["k"])
}

func TestManagerThrottlesByKey(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	m := NewManager(time.Hour, ch)

	sent, _ := m.Send(Alert{Level: LevelWarning, Key: "a", Message: "x"})
	assert.True(t, sent)
	sent, _ = m.Send(Alert{Level: LevelWarning, Key: "a", Message: "y"})
	assert.False(t, sent)
	sent, _ = m.Send(Alert{Level: LevelWarning, Key: "b", Message: "x"})
	assert.True(t, sent)

	m.ResetThrottle("a")
	sent, _ = m.Send(Alert{Level: LevelWarning, Key: "a", Message: "x"})
	assert.True(t, sent)
	assert.Len(t, ch.alerts, 3)
}

func TestThrottlerInterval(t *testing.T) {
	now := time.Unix(0, 0)
	th := NewThrottler(10 * time.Second)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow("k"))
	now = now.Add(9 * time.Second)
	assert.False(t, th.Allow("k"))
	now = now.Add(time.Second)
	assert.True(t, th.Allow("k"))
}

func TestManagerChannelFailures(t *testing.T) {
	bad := &mockChannel{name: "bad", err: errors.New("down")}
	m := NewManager(0, bad)

	_, err := m.Send(Alert{Level: LevelCritical, Message: "x"})
	assert.ErrorContains(t, err, "channel bad failed")

	good := &mockChannel{name: "good"}
	m.AddChannel(good)
	_, err = m.Send(Alert{Level: LevelCritical, Message: "x"})
	assert.NoError(t, err, "one healthy channel is enough")
	assert.Len(t, good.alerts, 1)
}
