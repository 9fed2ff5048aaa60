package mongo

import (
	"time"

	"space-pulse/internal/model"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// spaceDoc is a space with its members embedded. Version guards membership rewrites.
type spaceDoc struct {
	ID          bson.ObjectID  `bson:"_id"`
	Name        string         `bson:"name"`
	Description *string        `bson:"description,omitempty"`
	Icon        *string        `bson:"icon,omitempty"`
	CreatedAt   time.Time      `bson:"created_at"`
	Version     int64          `bson:"version"`
	Members     []model.Member `bson:"members"`
}

type messageDoc struct {
	ID        bson.ObjectID `bson:"_id"`
	SpaceID   bson.ObjectID `bson:"space_id"`
	Content   string        `bson:"content"`
	Author    model.Author  `bson:"author"`
	Timestamp time.Time     `bson:"timestamp"`
}

type noteDoc struct {
	ID        bson.ObjectID     `bson:"_id"`
	SpaceID   bson.ObjectID     `bson:"space_id"`
	Title     string            `bson:"title"`
	Rank      int               `bson:"rank"`
	Blocks    []model.NoteBlock `bson:"blocks"`
	CreatedAt time.Time         `bson:"created_at"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

func (d spaceDoc) toModel(msgs []messageDoc, notes []noteDoc) model.Space {
	sp := model.Space{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Description: d.Description,
		Icon:        d.Icon,
		CreatedAt:   d.CreatedAt,
		Members:     make([]model.Member, 0, len(d.Members)),
		Messages:    make([]model.Message, 0, len(msgs)),
		Notes:       make([]model.Note, 0, len(notes)),
	}
	for _, m := range d.Members {
		m.SpaceID = sp.ID
		sp.Members = append(sp.Members, m)
	}
	for _, m := range msgs {
		sp.Messages = append(sp.Messages, m.toModel())
	}
	for _, n := range notes {
		sp.Notes = append(sp.Notes, n.toModel())
	}
	return sp
}

func (d messageDoc) toModel() model.Message {
	kind, content := model.DecodeContent(d.Content)
	return model.Message{
		ID:        d.ID.Hex(),
		SpaceID:   d.SpaceID.Hex(),
		Content:   content,
		Timestamp: d.Timestamp,
		Author:    d.Author,
		Kind:      kind,
	}
}

func (d noteDoc) toModel() model.Note {
	blocks := d.Blocks
	if blocks == nil {
		blocks = []model.NoteBlock{}
	}
	return model.Note{
		ID:        d.ID.Hex(),
		SpaceID:   d.SpaceID.Hex(),
		Title:     d.Title,
		Rank:      d.Rank,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Blocks:    blocks,
	}
}

// storedTime is t as the server will return it: UTC at millisecond precision.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
