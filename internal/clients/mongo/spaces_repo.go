package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"space-pulse/internal/logger"
	"space-pulse/internal/model"
	"space-pulse/internal/services/spaces"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ErrConflict is returned when a membership rewrite keeps losing to concurrent writers.
var ErrConflict = errors.New("concurrent membership update")

// maxCASAttempts bounds the optimistic retries of a membership rewrite.
const maxCASAttempts = 5

// SpacesRepo implements spaces.Gateway on three collections: spaces (members embedded),
// messages and notes (blocks embedded).
type SpacesRepo struct {
	client   *mongo.Client
	spaces   *mongo.Collection
	messages *mongo.Collection
	notes    *mongo.Collection
	now      func() time.Time
}

var _ spaces.Gateway = (*SpacesRepo)(nil)

// NewSpacesRepo creates the repository and its indexes.
func NewSpacesRepo(parentCtx context.Context, db *mongo.Database) (*SpacesRepo, error) {
	r := &SpacesRepo{
		client:   db.Client(),
		spaces:   db.Collection("spaces"),
		messages: db.Collection("messages"),
		notes:    db.Collection("notes"),
		now:      func() time.Time { return time.Now().UTC() },
	}

	indexes := map[*mongo.Collection][]mongo.IndexModel{
		r.spaces: {
			{Keys: bson.D{{Key: "members.user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		r.messages: {
			{Keys: bson.D{{Key: "space_id", Value: 1}, {Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}},
		},
		r.notes: {
			{Keys: bson.D{{Key: "space_id", Value: 1}, {Key: "rank", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}

	ctx, cancel := context.WithTimeout(parentCtx, OpTimeout)
	defer cancel()

	for coll, models := range indexes {
		for _, im := range models {
			if _, err := coll.Indexes().CreateOne(ctx, im); err != nil {
				if mongo.IsDuplicateKeyError(err) {
					logger.Or(nil).Debug("index already exists, continuing", "collection", coll.Name())
					continue
				}
				logger.Or(nil).Error("failed to create index", "collection", coll.Name(), "error", err)
				return nil, fmt.Errorf("failed to create %s collection index: %w", coll.Name(), err)
			}
		}
	}

	return r, nil
}

// Ping reports whether the server answers.
func (r *SpacesRepo) Ping(ctx context.Context) error {
	ctx, cancel := repoCtx(ctx)
	defer cancel()
	return drv.Ping(ctx, r.client)
}

// CreateSpace inserts a space with its creator as ADMIN.
func (r *SpacesRepo) CreateSpace(ctx context.Context, in spaces.NewSpace) (model.Space, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	now := storedTime(r.now())
	doc := spaceDoc{
		ID:          bson.NewObjectID(),
		Name:        in.Name,
		Description: in.Description,
		Icon:        in.Icon,
		CreatedAt:   now,
		Version:     1,
	}
	doc.Members = []model.Member{{
		SpaceID:  doc.ID.Hex(),
		UserID:   in.Creator.ID,
		Role:     model.RoleAdmin,
		JoinedAt: now,
		User:     in.Creator,
	}}

	if _, err := r.spaces.InsertOne(ctx, doc); err != nil {
		return model.Space{}, err
	}
	return doc.toModel(nil, nil), nil
}

func (r *SpacesRepo) findSpace(ctx context.Context, spaceID string) (spaceDoc, error) {
	oid, err := spaceOID(spaceID)
	if err != nil {
		return spaceDoc{}, err
	}
	var doc spaceDoc
	if err := r.spaces.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return spaceDoc{}, notFoundAs(err, spaces.ErrSpaceNotFound)
	}
	return doc, nil
}

// GetSpace loads a space with its messages in timestamp order and notes in rank order.
func (r *SpacesRepo) GetSpace(ctx context.Context, spaceID string) (model.Space, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	doc, err := r.findSpace(ctx, spaceID)
	if err != nil {
		return model.Space{}, err
	}

	var msgs []messageDoc
	if err := r.findAll(ctx, r.messages, bson.M{"space_id": doc.ID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}), &msgs); err != nil {
		return model.Space{}, err
	}

	var notes []noteDoc
	if err := r.findAll(ctx, r.notes, bson.M{"space_id": doc.ID},
		options.Find().SetSort(bson.D{{Key: "rank", Value: 1}, {Key: "created_at", Value: -1}}), &notes); err != nil {
		return model.Space{}, err
	}

	return doc.toModel(msgs, notes), nil
}

func (r *SpacesRepo) findAll(ctx context.Context, coll *mongo.Collection, filter bson.M, opts *options.FindOptionsBuilder, out any) error {
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	defer closeCursor(ctx, cur)
	return cur.All(ctx, out)
}

// ListSpaces returns the spaces userID belongs to, newest first, without messages or notes.
func (r *SpacesRepo) ListSpaces(ctx context.Context, userID string) ([]model.Space, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	var docs []spaceDoc
	err := r.findAll(ctx, r.spaces, bson.M{"members.user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}), &docs)
	if err != nil {
		return nil, err
	}

	out := make([]model.Space, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel(nil, nil))
	}
	return out, nil
}

// DeleteSpace removes the space with its messages and notes.
func (r *SpacesRepo) DeleteSpace(ctx context.Context, spaceID string) error {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	oid, err := spaceOID(spaceID)
	if err != nil {
		return err
	}
	return inTxn(ctx, r.client, func(ctx context.Context) error {
		res, err := r.spaces.DeleteOne(ctx, bson.M{"_id": oid})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return spaces.ErrSpaceNotFound
		}
		return r.cascade(ctx, oid)
	})
}

func (r *SpacesRepo) cascade(ctx context.Context, oid bson.ObjectID) error {
	if _, err := r.messages.DeleteMany(ctx, bson.M{"space_id": oid}); err != nil {
		return err
	}
	_, err := r.notes.DeleteMany(ctx, bson.M{"space_id": oid})
	return err
}

// swapMembers writes members when the document is still at doc.Version. It reports false
// when someone else got there first.
func (r *SpacesRepo) swapMembers(ctx context.Context, doc spaceDoc, members []model.Member) (bool, error) {
	res, err := r.spaces.UpdateOne(ctx,
		bson.M{"_id": doc.ID, "version": doc.Version},
		bson.M{"$set": bson.M{"members": members}, "$inc": bson.M{"version": 1}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// rewriteMembers applies fn to the current member list with optimistic concurrency.
func (r *SpacesRepo) rewriteMembers(ctx context.Context, spaceID string, fn func(doc spaceDoc) ([]model.Member, error)) ([]model.Member, error) {
	for range maxCASAttempts {
		doc, err := r.findSpace(ctx, spaceID)
		if err != nil {
			return nil, err
		}
		members, err := fn(doc)
		if err != nil {
			return nil, err
		}
		ok, err := r.swapMembers(ctx, doc, members)
		if err != nil {
			return nil, err
		}
		if ok {
			return members, nil
		}
	}
	return nil, ErrConflict
}

// JoinSpace adds user as a MEMBER.
func (r *SpacesRepo) JoinSpace(ctx context.Context, spaceID string, user model.UserSnapshot) (model.Member, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	var joined model.Member
	_, err := r.rewriteMembers(ctx, spaceID, func(doc spaceDoc) ([]model.Member, error) {
		members, m, err := spaces.Admit(doc.Members, doc.ID.Hex(), user, storedTime(r.now()))
		joined = m
		return members, err
	})
	if err != nil {
		return model.Member{}, err
	}
	return joined, nil
}

// LeaveSpace removes userID. The member that empties the space deletes it; the version check
// makes that decision exclusive between concurrent leavers.
func (r *SpacesRepo) LeaveSpace(ctx context.Context, spaceID, userID string) (model.LeaveResult, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	for range maxCASAttempts {
		doc, err := r.findSpace(ctx, spaceID)
		if err != nil {
			return model.LeaveResult{}, err
		}
		rest, err := spaces.Depart(doc.Members, userID)
		if err != nil {
			return model.LeaveResult{}, err
		}

		if len(rest) > 0 {
			ok, err := r.swapMembers(ctx, doc, rest)
			if err != nil {
				return model.LeaveResult{}, err
			}
			if ok {
				return model.LeaveResult{Members: doc.withMembers(rest)}, nil
			}
			continue
		}

		deleted := false
		err = inTxn(ctx, r.client, func(ctx context.Context) error {
			res, err := r.spaces.DeleteOne(ctx, bson.M{"_id": doc.ID, "version": doc.Version})
			if err != nil {
				return err
			}
			if res.DeletedCount == 0 {
				return nil
			}
			deleted = true
			return r.cascade(ctx, doc.ID)
		})
		if err != nil {
			return model.LeaveResult{}, err
		}
		if deleted {
			return model.LeaveResult{SpaceDeleted: true, Members: []model.Member{}}, nil
		}
	}
	return model.LeaveResult{}, ErrConflict
}

func (d spaceDoc) withMembers(members []model.Member) []model.Member {
	d.Members = members
	return d.toModel(nil, nil).Members
}

// GetMember returns the membership of userID.
func (r *SpacesRepo) GetMember(ctx context.Context, spaceID, userID string) (model.Member, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	doc, err := r.findSpace(ctx, spaceID)
	if err != nil {
		return model.Member{}, err
	}
	m, ok := doc.toModel(nil, nil).Member(userID)
	if !ok {
		return model.Member{}, spaces.ErrNotMember
	}
	return m, nil
}

// SetMemberRole changes the role of userID and returns the member list after the change.
func (r *SpacesRepo) SetMemberRole(ctx context.Context, spaceID, userID string, role model.Role) ([]model.Member, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	var doc spaceDoc
	members, err := r.rewriteMembers(ctx, spaceID, func(d spaceDoc) ([]model.Member, error) {
		doc = d
		return spaces.ChangeRole(d.Members, userID, role)
	})
	if err != nil {
		return nil, err
	}
	return doc.withMembers(members), nil
}

// RemoveMember removes userID and returns the member list after the removal.
func (r *SpacesRepo) RemoveMember(ctx context.Context, spaceID, userID string) ([]model.Member, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	var doc spaceDoc
	members, err := r.rewriteMembers(ctx, spaceID, func(d spaceDoc) ([]model.Member, error) {
		doc = d
		rest, err := spaces.Depart(d.Members, userID)
		if err == nil && len(rest) == 0 {
			return nil, spaces.ErrForbidden
		}
		return rest, err
	})
	if err != nil {
		return nil, err
	}
	return doc.withMembers(members), nil
}

// UpdateSpaceInfo applies the non-nil fields of patch. An empty description or icon clears it.
func (r *SpacesRepo) UpdateSpaceInfo(ctx context.Context, spaceID string, patch model.SpaceInfo) (model.Space, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	oid, err := spaceOID(spaceID)
	if err != nil {
		return model.Space{}, err
	}

	set, unset := bson.M{}, bson.M{}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	for field, v := range map[string]*string{"description": patch.Description, "icon": patch.Icon} {
		switch {
		case v == nil:
		case *v == "":
			unset[field] = ""
		default:
			set[field] = *v
		}
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(update) == 0 {
		doc, err := r.findSpace(ctx, spaceID)
		if err != nil {
			return model.Space{}, err
		}
		return doc.toModel(nil, nil), nil
	}

	var doc spaceDoc
	err = r.spaces.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		return model.Space{}, notFoundAs(err, spaces.ErrSpaceNotFound)
	}
	return doc.toModel(nil, nil), nil
}

// CreateMessage stores msg and returns it with its id.
func (r *SpacesRepo) CreateMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	oid, err := spaceOID(msg.SpaceID)
	if err != nil {
		return model.Message{}, err
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}

	doc := messageDoc{
		ID:        bson.NewObjectID(),
		SpaceID:   oid,
		Content:   model.EncodeContent(msg.Kind, msg.Content),
		Author:    msg.Author,
		Timestamp: storedTime(ts),
	}
	if _, err := r.messages.InsertOne(ctx, doc); err != nil {
		return model.Message{}, err
	}
	return doc.toModel(), nil
}

// CreateNote stores n ahead of every existing note of its space.
func (r *SpacesRepo) CreateNote(ctx context.Context, n model.Note) (model.Note, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	oid, err := spaceOID(n.SpaceID)
	if err != nil {
		return model.Note{}, err
	}

	rank := 0
	var head noteDoc
	err = r.notes.FindOne(ctx, bson.M{"space_id": oid},
		options.FindOne().SetSort(bson.D{{Key: "rank", Value: 1}}).SetProjection(bson.M{"rank": 1})).Decode(&head)
	switch {
	case err == nil:
		rank = head.Rank - 1
	case !errors.Is(err, mongo.ErrNoDocuments):
		return model.Note{}, err
	}

	now := storedTime(r.now())
	doc := noteDoc{
		ID:        bson.NewObjectID(),
		SpaceID:   oid,
		Title:     n.Title,
		Rank:      rank,
		Blocks:    n.Blocks,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := r.notes.InsertOne(ctx, doc); err != nil {
		return model.Note{}, err
	}
	return doc.toModel(), nil
}

// UpdateNote replaces title and blocks in a single document write.
func (r *SpacesRepo) UpdateNote(ctx context.Context, n model.Note) (model.Note, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	soid, err := spaceOID(n.SpaceID)
	if err != nil {
		return model.Note{}, err
	}
	noid, err := noteOID(n.ID)
	if err != nil {
		return model.Note{}, err
	}

	blocks := n.Blocks
	if blocks == nil {
		blocks = []model.NoteBlock{}
	}
	var doc noteDoc
	err = r.notes.FindOneAndUpdate(ctx,
		bson.M{"_id": noid, "space_id": soid},
		bson.M{"$set": bson.M{"title": n.Title, "blocks": blocks, "updated_at": storedTime(r.now())}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return model.Note{}, notFoundAs(err, spaces.ErrNoteNotFound)
	}
	return doc.toModel(), nil
}

// DeleteNote removes a note of the space.
func (r *SpacesRepo) DeleteNote(ctx context.Context, spaceID, noteID string) error {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	soid, err := spaceOID(spaceID)
	if err != nil {
		return err
	}
	noid, err := noteOID(noteID)
	if err != nil {
		return err
	}

	res, err := r.notes.DeleteOne(ctx, bson.M{"_id": noid, "space_id": soid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return spaces.ErrNoteNotFound
	}
	return nil
}

// ReorderNotes ranks ids 0..n-1. Notes of the space missing from ids keep their relative
// order after them.
func (r *SpacesRepo) ReorderNotes(ctx context.Context, spaceID string, ids []string) ([]string, error) {
	ctx, cancel := repoCtx(ctx)
	defer cancel()

	soid, err := spaceOID(spaceID)
	if err != nil {
		return nil, err
	}

	var order []string
	err = inTxn(ctx, r.client, func(ctx context.Context) error {
		var current []noteDoc
		err := r.findAll(ctx, r.notes, bson.M{"space_id": soid},
			options.Find().
				SetSort(bson.D{{Key: "rank", Value: 1}, {Key: "created_at", Value: -1}}).
				SetProjection(bson.M{"_id": 1}), &current)
		if err != nil {
			return err
		}

		known := make([]string, 0, len(current))
		for _, n := range current {
			known = append(known, n.ID.Hex())
		}
		full, err := spaces.FullOrder(known, ids)
		if err != nil {
			return err
		}

		writes := make([]mongo.WriteModel, 0, len(full))
		for rank, id := range full {
			oid, err := bson.ObjectIDFromHex(id)
			if err != nil {
				return err
			}
			writes = append(writes, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": oid, "space_id": soid}).
				SetUpdate(bson.M{"$set": bson.M{"rank": rank}}))
		}
		if len(writes) > 0 {
			if _, err := r.notes.BulkWrite(ctx, writes); err != nil {
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
