package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffOnlyChangedFields(t *testing.T) {
	before := Snapshot{"title": "Draft", "description": "x", "position": 1}
	after := Snapshot{"title": "Final", "description": "x", "position": 1}

	changes := Diff(before, after)
	assert.Len(t, changes, 1)
	assert.Equal(t, FieldChange{Before: "Draft", After: "Final"}, changes["title"])
}

func TestDiffNilWhenNothingChanged(t *testing.T) {
	snap := Snapshot{"title": "Same", "position": 2}
	assert.Nil(t, Diff(snap, snap))
}

func TestDiffAddedAndRemovedFields(t *testing.T) {
	changes := Diff(Snapshot{"old": "gone"}, Snapshot{"new": "here"})

	assert.Equal(t, FieldChange{Before: "gone", After: nil}, changes["old"])
	assert.Equal(t, FieldChange{Before: nil, After: "here"}, changes["new"])
}

func TestDiffDeepValues(t *testing.T) {
	before := Snapshot{"order": []interface{}{int64(1), int64(2)}}
	after := Snapshot{"order": []interface{}{int64(2), int64(1)}}

	changes := Diff(before, after)
	assert.Len(t, changes, 1)

	same := Snapshot{"order": []interface{}{int64(1), int64(2)}}
	assert.Nil(t, Diff(before, same))
}

func TestCreatedAndDeleted(t *testing.T) {
	created := Created(Snapshot{"title": "New"})
	assert.Equal(t, FieldChange{Before: nil, After: "New"}, created["title"])

	deleted := Deleted(Snapshot{"title": "Old"})
	assert.Equal(t, FieldChange{Before: "Old", After: nil}, deleted["title"])
}

func TestSummarize(t *testing.T) {
	plain := &Entry{Action: ActionCollaboratorAdd}
	assert.Equal(t, "added a collaborator", Summarize(plain))

	update := &Entry{
		Action: ActionCourseUpdate,
		Changes: Changes{
			"title":       {Before: "a", After: "b"},
			"description": {Before: "c", After: "d"},
		},
	}
	// Changed fields are listed alphabetically
	assert.Equal(t, "updated the course (description, title)", Summarize(update))
}
