package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMailbox_ReentrantPostIsQueued(t *testing.T) {
	var m mailbox
	var order []string

	m.post(func() {
		order = append(order, "outer start")
		m.post(func() { order = append(order, "inner") })
		order = append(order, "outer end")
	})

	assert.Equal(t, []string{"outer start", "outer end", "inner"}, order)
}

func TestMailbox_ExecutorRunsOneDrainPerBurst(t *testing.T) {
	var drains []func()
	var m mailbox
	m.setExecutor(ExecutorFunc(func(task func()) { drains = append(drains, task) }))

	var ran int
	m.post(func() { ran++ })
	m.post(func() { ran++ })
	assert.Len(t, drains, 1, "posts while a drain is scheduled are batched")
	assert.Equal(t, 0, ran)

	drains[0]()
	assert.Equal(t, 2, ran)

	m.post(func() { ran++ })
	assert.Len(t, drains, 2)
}

func TestMailbox_PanicReleasesDrain(t *testing.T) {
	var m mailbox
	assert.PanicsWithValue(t, "boom", func() {
		m.post(func() { panic("boom") })
	})

	var ran bool
	m.post(func() { ran = true })
	assert.True(t, ran)
}
