// Package postgres implements the spaces gateway on PostgreSQL through GORM.
//
// Every mutation that touches more than one row runs in db.Transaction. Membership changes
// lock the space row first, so the last-member check of LeaveSpace and the cascading delete
// that follows it cannot interleave with another leave.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"space-pulse/internal/model"
	"space-pulse/internal/services/spaces"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// SpacesStore implements spaces.Gateway.
type SpacesStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ spaces.Gateway = (*SpacesStore)(nil)

// Open connects to dsn and migrates the schema. GORM warnings go to log.
func Open(ctx context.Context, dsn string, log *slog.Logger) (*SpacesStore, error) {
	gl := gormlogger.New(slog.NewLogLogger(log.Handler(), slog.LevelWarn), gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gl, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	s := &SpacesStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	log.Info("connected to postgres")
	return s, nil
}

// Migrate creates missing tables, columns, indexes and foreign keys.
func (s *SpacesStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&spaceRow{},
		&memberRow{},
		&messageRow{},
		&noteRow{},
		&blockRow{},
		&itemRow{},
	)
}

// Close closes the database connection
func (s *SpacesStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping reports whether the database answers.
func (s *SpacesStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func parseSpaceID(id string) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, spaces.ErrSpaceNotFound
	}
	return u, nil
}

func parseNoteID(id string) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, spaces.ErrNoteNotFound
	}
	return u, nil
}

func notFoundAs(err, domain error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain
	}
	return err
}

// lockSpace loads the space row FOR UPDATE with its members.
func lockSpace(tx *gorm.DB, id uuid.UUID) (spaceRow, error) {
	var row spaceRow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", id).Error
	if err != nil {
		return spaceRow{}, notFoundAs(err, spaces.ErrSpaceNotFound)
	}
	if err := tx.Where("space_id = ?", id).Order("joined_at, user_id").Find(&row.Members).Error; err != nil {
		return spaceRow{}, err
	}
	return row, nil
}

// CreateSpace inserts a space with its creator as ADMIN.
func (s *SpacesStore) CreateSpace(ctx context.Context, in spaces.NewSpace) (model.Space, error) {
	now := storedTime(s.now())
	row := spaceRow{
		ID:          uuid.New(),
		Name:        in.Name,
		Description: in.Description,
		Icon:        in.Icon,
		CreatedAt:   now,
	}
	row.Members = []memberRow{memberFromModel(row.ID, model.Member{
		UserID:   in.Creator.ID,
		Role:     model.RoleAdmin,
		JoinedAt: now,
		User:     in.Creator,
	})}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.Space{}, err
	}
	return row.toModel(), nil
}

// GetSpace loads a space with members, messages in timestamp order and notes in rank order.
func (s *SpacesStore) GetSpace(ctx context.Context, spaceID string) (model.Space, error) {
	id, err := parseSpaceID(spaceID)
	if err != nil {
		return model.Space{}, err
	}

	var row spaceRow
	err = s.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("joined_at, user_id") }).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("timestamp, id") }).
		Preload("Notes", func(db *gorm.DB) *gorm.DB { return db.Order("rank, created_at DESC") }).
		Preload("Notes.Blocks", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Notes.Blocks.Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&row, "id = ?", id).Error
	if err != nil {
		return model.Space{}, notFoundAs(err, spaces.ErrSpaceNotFound)
	}
	return row.toModel(), nil
}

// ListSpaces returns the spaces userID belongs to, newest first, without messages or notes.
func (s *SpacesStore) ListSpaces(ctx context.Context, userID string) ([]model.Space, error) {
	var rows []spaceRow
	err := s.db.WithContext(ctx).
		Where("id IN (?)", s.db.Model(&memberRow{}).Select("space_id").Where("user_id = ?", userID)).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("joined_at, user_id") }).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]model.Space, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// DeleteSpace removes the space; foreign keys cascade to everything in it.
func (s *SpacesStore) DeleteSpace(ctx context.Context, spaceID string) error {
	id, err := parseSpaceID(spaceID)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Delete(&spaceRow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return spaces.ErrSpaceNotFound
	}
	return nil
}

// JoinSpace adds user as a MEMBER.
func (s *SpacesStore) JoinSpace(ctx context.Context, spaceID string, user model.UserSnapshot) (model.Member, error) {
	id, err := parseSpaceID(spaceID)
	if err != nil {
		return model.Member{}, err
	}

	var joined model.Member
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockSpace(tx, id)
		if err != nil {
			return err
		}
		_, m, err := spaces.Admit(toMembers(row.Members), id.String(), user, storedTime(s.now()))
		if err != nil {
			return err
		}
		mr := memberFromModel(id, m)
		if err := tx.Create(&mr).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return spaces.ErrAlreadyMember
			}
			return err
		}
		joined = mr.toModel()
		return nil
	})
	return joined, err
}

// LeaveSpace removes userID and deletes the space when nobody is left, in one transaction.
func (s *SpacesStore) LeaveSpace(ctx context.Context, spaceID, userID string) (model.LeaveResult, error) {
	id, err := parseSpaceID(spaceID)
	if err != nil {
		return model.LeaveResult{}, err
	}

	var res model.LeaveResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockSpace(tx, id)
		if err != nil {
			return err
		}
		rest, err := spaces.Depart(toMembers(row.Members), userID)
		if err != nil {
			return err
		}

		if len(rest) == 0 {
			if err := tx.Delete(&spaceRow{}, "id = ?", id).Error; err != nil {
				return err
			}
			res = model.LeaveResult{SpaceDeleted: true, Members: []model.Member{}}
			return nil
		}

		if err := writeMembers(tx, id, row.Members, rest); err != nil {
			return err
		}
		res = model.LeaveResult{Members: rest}
		return nil
	})
	return res, err
}

// writeMembers deletes the rows missing from after and rewrites changed roles.
func writeMembers(tx *gorm.DB, spaceID uuid.UUID, before []memberRow, after []model.Member) error {
	keep := make(map[string]model.Role, len(after))
	for _, m := range after {
		keep[m.UserID] = m.Role
	}
	for _, b := range before {
		role, ok := keep[b.UserID]
		switch {
		case !ok:
			if err := tx.Delete(&memberRow{}, "space_id = ? AND user_id = ?", spaceID, b.UserID).Error; err != nil {
				return err
			}
		case string(role) != b.Role:
			err := tx.Model(&memberRow{}).
				Where("space_id = ? AND user_id = ?", spaceID, b.UserID).
				Update("role", string(role)).Error
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// GetMember returns the membership of userID.
func (s *SpacesStore) GetMember(ctx context.Context, spaceID, userID string) (model.Member, error) {
	id, err := parseSpaceID(spaceID)
	if err != nil {
		return model.Member{}, err
	}

	var row memberRow
	err = s.db.WithContext(ctx).First(&row, "space_id = ? AND user_id = ?", id, userID).Error
	if err == nil {
		return row.toModel(), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Member{}, err
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&spaceRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return model.Member{}, err
	}
	if n == 0 {
		return model.Member{}, spaces.ErrSpaceNotFound
	}
	return model.Member{}, spaces.ErrNotMember
}

// SetMemberRole changes the role of userID and returns the member list after the change.
func (s *SpacesStore) SetMemberRole(ctx context.Context, spaceID, userID string, role model.Role) ([]model.Member, error) {
	return s.rewriteMembers(ctx, spaceID, func(members []model.Member) ([]model.Member, error) {
		return spaces.ChangeRole(members, userID, role)
	})
}

// RemoveMember removes userID and returns the member list after the removal.
func (s *SpacesStore) RemoveMember(ctx context.Context, spaceID, userID string) ([]model.Member, error) {
	return s.rewriteMembers(ctx, spaceID, func(members []model.Member) ([]model.Member, error) {
		rest, err := spaces.Depart(members, userID)
		if err == nil && len(rest) == 0 {
			return nil, spaces.ErrForbidden
		}
		return rest, err
	})
}

func (s *SpacesStore) rewriteMembers(ctx context.Context, spaceID string, fn func([]model.Member) ([]model.Member, error)) ([]model.Member, error) {
	id, err := parseSpaceID(spaceID)
	if err != nil {
		return nil, err
	}

	var out []model.Member
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockSpace(tx, id)
		if err != nil {
			return err
		}
		after, err := fn(toMembers(row.Members))
		if err != nil {
			return err
		}
		if err := writeMembers(tx, id, row.Members, after); err != nil {
			return err
		}
		out = after
		return nil
	})
	return out, err
}

// UpdateSpaceInfo applies the non-nil fields of patch. An empty description or icon clears it.
func (s *SpacesStore) UpdateSpaceInfo(ctx context.Context, spaceID string, patch model.SpaceInfo) (model.Space, error) {
	id, err := parseSpaceID(spaceID)
	if err != nil {
		return model.Space{}, err
	}

	updates := map[string]any{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	for col, v := range map[string]*string{"description": patch.Description, "icon": patch.Icon} {
		switch {
		case v == nil:
		case *v == "":
			updates[col] = nil
		default:
			updates[col] = *v
		}
	}

	var row spaceRow
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			return notFoundAs(err, spaces.ErrSpaceNotFound)
		}
		if len(updates) > 0 {
			if err := tx.Model(&row).Updates(updates).Error; err != nil {
				return err
			}
			if err := tx.First(&row, "id = ?", id).Error; err != nil {
				return err
			}
		}
		return tx.Where("space_id = ?", id).Order("joined_at, user_id").Find(&row.Members).Error
	})
	if err != nil {
		return model.Space{}, err
	}
	return row.toModel(), nil
}

// CreateMessage stores msg and returns it with its id.
func (s *SpacesStore) CreateMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	id, err := parseSpaceID(msg.SpaceID)
	if err != nil {
		return model.Message{}, err
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	row := messageRow{
		SpaceID:        id,
		Content:        model.EncodeContent(msg.Kind, msg.Content),
		AuthorName:     msg.Author.Name,
		AuthorUsername: msg.Author.Username,
		Timestamp:      storedTime(ts),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return model.Message{}, spaces.ErrSpaceNotFound
		}
		return model.Message{}, err
	}
	return row.toModel(), nil
}

// CreateNote stores n ahead of every existing note of its space.
func (s *SpacesStore) CreateNote(ctx context.Context, n model.Note) (model.Note, error) {
	id, err := parseSpaceID(n.SpaceID)
	if err != nil {
		return model.Note{}, err
	}

	now := storedTime(s.now())
	row := noteRow{ID: uuid.New(), SpaceID: id, Title: n.Title, CreatedAt: now, UpdatedAt: now}
	row.Blocks = blockRows(row.ID, n.Blocks)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockSpace(tx, id); err != nil {
			return err
		}
		var head struct{ Min *int }
		if err := tx.Model(&noteRow{}).Select("MIN(rank) AS min").Where("space_id = ?", id).Scan(&head).Error; err != nil {
			return err
		}
		if head.Min != nil {
			row.Rank = *head.Min - 1
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return model.Note{}, err
	}
	return row.toModel(), nil
}

// UpdateNote replaces title and blocks: all blocks are deleted and recreated in one transaction.
func (s *SpacesStore) UpdateNote(ctx context.Context, n model.Note) (model.Note, error) {
	sid, err := parseSpaceID(n.SpaceID)
	if err != nil {
		return model.Note{}, err
	}
	nid, err := parseNoteID(n.ID)
	if err != nil {
		return model.Note{}, err
	}

	var row noteRow
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ? AND space_id = ?", nid, sid).Error
		if err != nil {
			return notFoundAs(err, spaces.ErrNoteNotFound)
		}

		if err := tx.Where("note_id = ?", nid).Delete(&blockRow{}).Error; err != nil {
			return err
		}
		row.Title = n.Title
		row.UpdatedAt = storedTime(s.now())
		if err := tx.Model(&noteRow{}).Where("id = ?", nid).
			Updates(map[string]any{"title": row.Title, "updated_at": row.UpdatedAt}).Error; err != nil {
			return err
		}

		row.Blocks = blockRows(nid, n.Blocks)
		if len(row.Blocks) > 0 {
			return tx.Create(&row.Blocks).Error
		}
		return nil
	})
	if err != nil {
		return model.Note{}, err
	}
	return row.toModel(), nil
}

// DeleteNote removes a note of the space.
func (s *SpacesStore) DeleteNote(ctx context.Context, spaceID, noteID string) error {
	sid, err := parseSpaceID(spaceID)
	if err != nil {
		return err
	}
	nid, err := parseNoteID(noteID)
	if err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Delete(&noteRow{}, "id = ? AND space_id = ?", nid, sid)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return spaces.ErrNoteNotFound
	}
	return nil
}

// ReorderNotes ranks ids 0..n-1; notes left out keep their relative order after them.
func (s *SpacesStore) ReorderNotes(ctx context.Context, spaceID string, ids []string) ([]string, error) {
	sid, err := parseSpaceID(spaceID)
	if err != nil {
		return nil, err
	}

	var order []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockSpace(tx, sid); err != nil {
			return err
		}

		var current []uuid.UUID
		err := tx.Model(&noteRow{}).Where("space_id = ?", sid).
			Order("rank, created_at DESC").Pluck("id", &current).Error
		if err != nil {
			return err
		}

		known := make([]string, 0, len(current))
		for _, id := range current {
			known = append(known, id.String())
		}
		full, err := spaces.FullOrder(known, canonical(ids))
		if err != nil {
			return err
		}

		for rank, id := range full {
			if err := tx.Model(&noteRow{}).Where("id = ?", id).Update("rank", rank).Error; err != nil {
				return err
			}
		}
		order = full
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// canonical rewrites uuid ids in their lowercase hyphenated form; other strings are kept and
// later rejected as unknown.
func canonical(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if u, err := uuid.Parse(id); err == nil {
			id = u.String()
		}
		out = append(out, id)
	}
	return out
}
