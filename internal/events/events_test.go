package events

import (
	"encoding/json"
	"testing"
	"time"

	"space-pulse/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelParse(t *testing.T) {
	tests := []struct {
		name    string
		channel Channel
		spaceID string
		global  bool
		wantErr bool
	}{
		{name: "global", channel: Global, global: true},
		{name: "space", channel: SpaceChannel("abc"), spaceID: "abc"},
		{name: "empty id", channel: "space-", wantErr: true},
		{name: "wildcard", channel: "space-*", wantErr: true},
		{name: "unknown prefix", channel: "room-1", wantErr: true},
		{name: "empty", channel: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, global, err := tt.channel.Parse()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidChannel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.spaceID, id)
			assert.Equal(t, tt.global, global)
		})
	}
}

func TestValidateTopology(t *testing.T) {
	assert.NoError(t, Validate(Global, SpaceDeleted{SpaceID: "s1"}))
	assert.ErrorIs(t, Validate(SpaceChannel("s1"), SpaceDeleted{SpaceID: "s1"}), ErrWrongChannel)

	assert.NoError(t, Validate(SpaceChannel("s1"), NoteDeleted{NoteID: "n1", SpaceID: "s1"}))
	assert.ErrorIs(t, Validate(Global, NoteDeleted{NoteID: "n1", SpaceID: "s1"}), ErrWrongChannel)
	assert.ErrorIs(t, Validate(SpaceChannel("s2"), NoteDeleted{NoteID: "n1", SpaceID: "s1"}), ErrWrongChannel)

	assert.ErrorIs(t, Validate(SpaceChannel("s1"), nil), ErrMalformedPayload)
	assert.ErrorIs(t, Validate("bogus", SpaceDeleted{}), ErrInvalidChannel)
}

func TestEveryTypeHasAScopeAndAStruct(t *testing.T) {
	all := append(append([]Type{}, GlobalTypes...), SpaceTypes...)
	assert.Len(t, all, 13)

	for _, typ := range all {
		v, err := newEvent(typ)
		require.NoError(t, err, typ)
		ev := deref(v)
		require.NotNil(t, ev, typ)
		assert.Equal(t, typ, ev.Type())
	}
	for _, typ := range GlobalTypes {
		assert.Equal(t, ScopeGlobal, typ.Scope())
	}
	for _, typ := range SpaceTypes {
		assert.Equal(t, ScopeSpace, typ.Scope())
	}
}

func TestMessagePayloadIsFlat(t *testing.T) {
	msg := model.Message{ID: "m1", SpaceID: "s1", Content: "hi", Kind: model.KindText}
	b, err := json.Marshal(MessageNew{Message: msg})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "m1", raw["id"])
	assert.Equal(t, "s1", raw["spaceId"])
	assert.NotContains(t, raw, "Message")
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode("note:exploded", []byte(`{}`), json.Unmarshal)
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = Decode(TypeNoteDeleted, nil, json.Unmarshal)
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = Decode(TypeNotesReordered, []byte(`{"orderedIds": "nope"}`), json.Unmarshal)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestCodecsCarryTheSameEvent(t *testing.T) {
	desc := "weekly sync"
	ts := time.Date(2025, 6, 1, 12, 30, 0, 123456789, time.UTC)
	in := EventFrame(SpaceChannel("s1"), NoteCreated{
		SpaceID: "s1",
		Note: model.Note{
			ID:        "n1",
			SpaceID:   "s1",
			Title:     "Agenda",
			Rank:      -1,
			CreatedAt: ts,
			UpdatedAt: ts,
			Blocks: []model.NoteBlock{
				{ID: "b1", Type: model.BlockTodo, TodoTitle: &desc, Collapsed: true, Items: []model.NoteBlockItem{
					{ID: "i1", Text: "prep", Done: true},
				}},
			},
		},
	})

	for _, name := range []string{"json", "cbor"} {
		t.Run(name, func(t *testing.T) {
			codec, err := CodecByName(name)
			require.NoError(t, err)

			b, err := codec.Encode(in)
			require.NoError(t, err)
			out, err := codec.Decode(b)
			require.NoError(t, err)

			assert.Equal(t, OpEvent, out.Op)
			assert.Equal(t, in.Channel, out.Channel)
			got, ok := out.Event.(NoteCreated)
			require.True(t, ok, "expected NoteCreated, got %T", out.Event)
			assert.Equal(t, "Agenda", got.Note.Title)
			assert.True(t, ts.Equal(got.Note.CreatedAt))
			require.Len(t, got.Note.Blocks, 1)
			assert.False(t, got.Note.Blocks[0].Collapsed, "collapsed is local-only state")
			assert.Equal(t, desc, *got.Note.Blocks[0].TodoTitle)
			assert.True(t, got.Note.Blocks[0].Items[0].Done)
		})
	}
}

func TestCodecControlFrames(t *testing.T) {
	codec := JSONCodec{}
	b, err := codec.Encode(Frame{Op: OpSubscribe, Channel: SpaceChannel("s9")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"subscribe","channel":"space-s9"}`, string(b))

	f, err := codec.Decode([]byte(`{"op":"error","channel":"space-x","error":"forbidden"}`))
	require.NoError(t, err)
	assert.Equal(t, OpError, f.Op)
	assert.Equal(t, "forbidden", f.Error)
	assert.Nil(t, f.Event)
}

func TestCodecMalformedEventKeepsEnvelope(t *testing.T) {
	f, err := JSONCodec{}.Decode([]byte(`{"op":"event","channel":"space-s1","event":"note:deleted","data":[1,2]}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
	assert.Equal(t, SpaceChannel("s1"), f.Channel)
	assert.Nil(t, f.Event)

	_, err = CodecByName("xml")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}
