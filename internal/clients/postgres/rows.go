package postgres

import (
	"time"

	"space-pulse/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type spaceRow struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey"`
	Name        string       `gorm:"not null"`
	Description *string      `gorm:"type:text"`
	Icon        *string      `gorm:"type:text"`
	CreatedAt   time.Time    `gorm:"not null;index"`
	Members     []memberRow  `gorm:"foreignKey:SpaceID;constraint:OnDelete:CASCADE"`
	Messages    []messageRow `gorm:"foreignKey:SpaceID;constraint:OnDelete:CASCADE"`
	Notes       []noteRow    `gorm:"foreignKey:SpaceID;constraint:OnDelete:CASCADE"`
}

func (spaceRow) TableName() string { return "spaces" }

// BeforeCreate hook to generate ID if not set
func (s *spaceRow) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// memberRow is keyed by (space_id, user_id); the user columns are a snapshot taken at join.
type memberRow struct {
	SpaceID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID   string    `gorm:"primaryKey;index"`
	Role     string    `gorm:"not null"`
	JoinedAt time.Time `gorm:"not null"`
	Name     string
	Username string
	Email    string
	Avatar   string
}

func (memberRow) TableName() string { return "members" }

type messageRow struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	SpaceID        uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_space_ts,priority:1"`
	Content        string    `gorm:"not null"`
	AuthorName     string
	AuthorUsername string
	Timestamp      time.Time `gorm:"not null;index:idx_messages_space_ts,priority:2"`
}

func (messageRow) TableName() string { return "messages" }

func (m *messageRow) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

type noteRow struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	SpaceID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_notes_space_rank,priority:1"`
	Title     string     `gorm:"not null"`
	Rank      int        `gorm:"not null;index:idx_notes_space_rank,priority:2"`
	CreatedAt time.Time  `gorm:"not null"`
	UpdatedAt time.Time  `gorm:"not null"`
	Blocks    []blockRow `gorm:"foreignKey:NoteID;constraint:OnDelete:CASCADE"`
}

func (noteRow) TableName() string { return "notes" }

func (n *noteRow) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// blockRow stores one block; BlockID is the client-visible id, Position keeps block order.
type blockRow struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	NoteID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Position  int       `gorm:"not null"`
	BlockID   string    `gorm:"not null"`
	Type      string    `gorm:"not null"`
	Content   string
	TodoTitle *string
	Items     []itemRow `gorm:"foreignKey:BlockRowID;constraint:OnDelete:CASCADE"`
}

func (blockRow) TableName() string { return "note_blocks" }

func (b *blockRow) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

type itemRow struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	BlockRowID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Position    int       `gorm:"not null"`
	ItemID      string    `gorm:"not null"`
	Text        string
	Done        bool
	Description *string
}

func (itemRow) TableName() string { return "note_block_items" }

func (i *itemRow) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (s spaceRow) toModel() model.Space {
	sp := model.Space{
		ID:          s.ID.String(),
		Name:        s.Name,
		Description: s.Description,
		Icon:        s.Icon,
		CreatedAt:   s.CreatedAt,
		Members:     toMembers(s.Members),
		Messages:    make([]model.Message, 0, len(s.Messages)),
		Notes:       make([]model.Note, 0, len(s.Notes)),
	}
	for _, m := range s.Messages {
		sp.Messages = append(sp.Messages, m.toModel())
	}
	for _, n := range s.Notes {
		sp.Notes = append(sp.Notes, n.toModel())
	}
	return sp
}

func toMembers(rows []memberRow) []model.Member {
	out := make([]model.Member, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out
}

func (r memberRow) toModel() model.Member {
	return model.Member{
		SpaceID:  r.SpaceID.String(),
		UserID:   r.UserID,
		Role:     model.Role(r.Role),
		JoinedAt: r.JoinedAt,
		User: model.UserSnapshot{
			ID:       r.UserID,
			Name:     r.Name,
			Username: r.Username,
			Email:    r.Email,
			Avatar:   r.Avatar,
		},
	}
}

func memberFromModel(spaceID uuid.UUID, m model.Member) memberRow {
	return memberRow{
		SpaceID:  spaceID,
		UserID:   m.UserID,
		Role:     string(m.Role),
		JoinedAt: m.JoinedAt,
		Name:     m.User.Name,
		Username: m.User.Username,
		Email:    m.User.Email,
		Avatar:   m.User.Avatar,
	}
}

func (m messageRow) toModel() model.Message {
	kind, content := model.DecodeContent(m.Content)
	return model.Message{
		ID:        m.ID.String(),
		SpaceID:   m.SpaceID.String(),
		Content:   content,
		Timestamp: m.Timestamp,
		Author:    model.Author{Name: m.AuthorName, Username: m.AuthorUsername},
		Kind:      kind,
	}
}

func (n noteRow) toModel() model.Note {
	note := model.Note{
		ID:        n.ID.String(),
		SpaceID:   n.SpaceID.String(),
		Title:     n.Title,
		Rank:      n.Rank,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		Blocks:    make([]model.NoteBlock, 0, len(n.Blocks)),
	}
	for _, b := range n.Blocks {
		block := model.NoteBlock{ID: b.BlockID, Type: model.BlockType(b.Type), Content: b.Content, TodoTitle: b.TodoTitle}
		for _, it := range b.Items {
			block.Items = append(block.Items, model.NoteBlockItem{ID: it.ItemID, Text: it.Text, Done: it.Done, Description: it.Description})
		}
		note.Blocks = append(note.Blocks, block)
	}
	return note
}

// blockRows converts blocks for insertion under noteID, keeping their order.
func blockRows(noteID uuid.UUID, blocks []model.NoteBlock) []blockRow {
	rows := make([]blockRow, 0, len(blocks))
	for i, b := range blocks {
		row := blockRow{NoteID: noteID, Position: i, BlockID: b.ID, Type: string(b.Type), Content: b.Content, TodoTitle: b.TodoTitle}
		for j, it := range b.Items {
			row.Items = append(row.Items, itemRow{Position: j, ItemID: it.ID, Text: it.Text, Done: it.Done, Description: it.Description})
		}
		rows = append(rows, row)
	}
	return rows
}

// storedTime is t as the database returns it: UTC at microsecond precision.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
