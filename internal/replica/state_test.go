package replica

import (
	"testing"
	"time"

	"space-pulse/internal/events"
	"space-pulse/internal/model"

	"github.com/stretchr/testify/assert"
)

func messageIDs(msgs []model.Message) []string {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestPutSpace_KeepsMessagesNewerThanTheFetch(t *testing.T) {
	s := seeded()
	s = Apply(s, on("s1", events.MessageNew{Message: msg("m2", t0.Add(2*time.Minute))}))

	fetch := mustSpace(t, s, "s1")
	fetch.Messages = []model.Message{msg("m1", t0.Add(time.Minute))}
	fetch.Notes = nil
	s = PutSpace(s, fetch)

	assert.Equal(t, []string{"m1", "m2"}, messageIDs(mustSpace(t, s, "s1").Messages))
}

func TestPutSpace_FetchedMessagesAreNotDuplicated(t *testing.T) {
	s := seeded()
	s = Apply(s, on("s1", events.MessageNew{Message: msg("m1", t0)}))

	fetch := mustSpace(t, s, "s1")
	fetch.Messages = []model.Message{msg("m1", t0), msg("m2", t0.Add(time.Second))}
	s = PutSpace(s, fetch)

	assert.Equal(t, []string{"m1", "m2"}, messageIDs(mustSpace(t, s, "s1").Messages))
}

func TestPutSpace_NotesAndMembersFollowTheFetch(t *testing.T) {
	s := seeded()
	s = Apply(s, on("s1", events.NoteCreated{SpaceID: "s1", Note: note("n1", "Plan")}))
	s = Apply(s, on("s1", events.NoteCreated{SpaceID: "s1", Note: note("n2", "Gone")}))

	fetch := model.Space{ID: "s1", Name: "Team", Members: []model.Member{member("s1", self, model.RoleAdmin)}, Notes: []model.Note{note("n1", "Plan v2")}}
	s = PutSpace(s, fetch)

	sp := mustSpace(t, s, "s1")
	assert.Equal(t, []string{"n1"}, noteIDs(sp.Notes))
	assert.Equal(t, "Plan v2", sp.Notes[0].Title)
	assert.Len(t, sp.Members, 1)
}

func TestPutSpace_IgnoresSpacesNoLongerKnown(t *testing.T) {
	s := seeded()
	assert.Equal(t, s, PutSpace(s, model.Space{ID: "s9", Name: "Left meanwhile"}))
}
