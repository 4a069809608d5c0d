package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	t.Run("add keeps members sorted and unique", func(t *testing.T) {
		s := NewSet("web", "finance", "web", "admins")
		assert.Equal(t, Set{"admins", "finance", "web"}, s)
	})

	t.Run("add does not modify the receiver", func(t *testing.T) {
		base := NewSet("a", "c")
		grown := base.Add("b")
		assert.Equal(t, Set{"a", "c"}, base)
		assert.Equal(t, Set{"a", "b", "c"}, grown)
	})

	t.Run("contains", func(t *testing.T) {
		s := NewSet("finance", "hr")
		assert.True(t, s.Contains("hr"))
		assert.False(t, s.Contains("it"))
		assert.False(t, Set(nil).Contains("hr"))
	})

	t.Run("intersects", func(t *testing.T) {
		assert.True(t, NewSet("finance", "hr").Intersects(NewSet("it", "hr")))
		assert.False(t, NewSet("finance").Intersects(NewSet("hr", "it")))
		assert.False(t, NewSet("finance").Intersects(nil))
		assert.False(t, Set(nil).Intersects(nil))
	})
}

func TestParseDirectiveValues(t *testing.T) {
	typ, ok := ParseTaskType("oneshot")
	assert.True(t, ok)
	assert.Equal(t, TaskTypeOneShot, typ)

	typ, ok = ParseTaskType("onboot")
	assert.True(t, ok)
	assert.Equal(t, TaskTypeOnBoot, typ)

	_, ok = ParseTaskType("weekly")
	assert.False(t, ok)

	_, ok = ParseTaskType("OneShot")
	assert.False(t, ok, "directive values are case-sensitive")

	aud, ok := ParseAudience("user")
	assert.True(t, ok)
	assert.Equal(t, AudienceUser, aud)

	_, ok = ParseAudience("admin")
	assert.False(t, ok)
	assert.False(t, Audience("admin").Valid())
	assert.True(t, AudienceSystem.Valid())
}
