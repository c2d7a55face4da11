package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocFreeAndByFD(t *testing.T) {
	tbl := NewTable(2)
	s := tbl.AllocFree()
	require.NotNil(t, s)
	s.FD = 7
	tbl.Touch(s)

	assert.Same(t, s, tbl.ByFD(7))
	assert.Nil(t, tbl.ByFD(99))

	s2 := tbl.AllocFree()
	require.NotNil(t, s2)
	s2.FD = 8

	assert.Nil(t, tbl.AllocFree(), "table at capacity must report no free slot")
}

func TestEvictionCandidateOnlyConsidersIdleSlots(t *testing.T) {
	tbl := NewTable(3)
	a := tbl.AllocFree()
	a.FD = 1
	tbl.Touch(a)
	a.LRUIdle = true

	b := tbl.AllocFree()
	b.FD = 2
	tbl.Touch(b)
	b.LRUIdle = false // mid-request: must never be chosen

	assert.Same(t, a, tbl.EvictionCandidate())

	c := tbl.AllocFree()
	c.FD = 3
	tbl.Touch(c)
	c.LRUIdle = true

	// c was touched after a, so a (the smaller counter) remains the pick.
	assert.Same(t, a, tbl.EvictionCandidate())
}

func TestEvictionCandidateNoneWhenAllBusy(t *testing.T) {
	tbl := NewTable(1)
	s := tbl.AllocFree()
	s.FD = 1
	s.LRUIdle = false
	assert.Nil(t, tbl.EvictionCandidate())
}

func TestResetReturnsSlotToFree(t *testing.T) {
	tbl := NewTable(1)
	s := tbl.AllocFree()
	s.FD = 5
	freed := false
	s.UserCtx.Set("x", func(any) { freed = true })
	s.Reset()
	assert.True(t, s.IsFree())
	assert.True(t, freed)
}
