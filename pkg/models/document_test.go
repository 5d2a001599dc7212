package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldsEmpty(t *testing.T) {
	assert.True(t, Fields{}.Empty())
	assert.True(t, Fields{"summary": "", "notes": nil}.Empty())
	assert.False(t, Fields{"summary": "", "wasteCollected": 0}.Empty())
	assert.False(t, Fields{"summary": "beach cleanup"}.Empty())
}

func TestFieldsClone(t *testing.T) {
	f := Fields{"summary": "a"}
	c := f.Clone()
	c["summary"] = "b"
	assert.Equal(t, "a", f["summary"])
}

func TestIdentity(t *testing.T) {
	assert.False(t, Identity{UserName: "Ann"}.Valid())
	id := Identity{UserID: "u1", UserName: "Ann"}
	assert.True(t, id.Valid())
	assert.Equal(t, Participant{UserID: "u1", UserName: "Ann"}, id.Participant())
}
