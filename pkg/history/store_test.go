package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecent(t *testing.T) {
	s := NewStore(3)
	for i := 1; i <= 5; i++ {
		s.Append(Entry{ID: fmt.Sprintf("m%d", i), Chat: "a@s.whatsapp.net"})
	}
	s.Append(Entry{ID: "other", Chat: "b@s.whatsapp.net"})

	all := s.Recent("a@s.whatsapp.net", 0)
	require.Len(t, all, 3)
	assert.Equal(t, "m3", all[0].ID)
	assert.Equal(t, "m5", all[2].ID)

	last := s.Recent("a@s.whatsapp.net", 2)
	require.Len(t, last, 2)
	assert.Equal(t, "m4", last[0].ID)

	assert.Empty(t, s.Recent("missing@s.whatsapp.net", 10))
}

func TestRecentReturnsCopy(t *testing.T) {
	s := NewStore(10)
	s.Append(Entry{ID: "m1", Chat: "a", Content: "orig"})

	got := s.Recent("a", 10)
	got[0].Content = "changed"

	assert.Equal(t, "orig", s.Recent("a", 10)[0].Content)
}

func TestReset(t *testing.T) {
	s := NewStore(0)
	s.Append(Entry{ID: "m1", Chat: "a"})
	s.Reset()
	assert.Empty(t, s.Recent("a", 10))
}
