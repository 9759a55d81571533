package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/learnloop/chat-service/internal/domain"
	"github.com/learnloop/chat-service/internal/store"
)

var _ store.Store = (*Store)(nil)

const opTimeout = 5 * time.Second

// Connect dials mongo and pings it so startup fails fast on a bad URI.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

type Store struct {
	client   *mongo.Client
	rooms    *mongo.Collection
	messages *mongo.Collection
	requests *mongo.Collection
}

func New(client *mongo.Client, dbName string) *Store {
	db := client.Database(dbName)
	s := &Store{
		client:   client,
		rooms:    db.Collection("rooms"),
		messages: db.Collection("messages"),
		requests: db.Collection("requests"),
	}
	s.ensureIndexes()
	return s
}

func (s *Store) ensureIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, _ = s.rooms.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "members.user_id", Value: 1}},
		Options: options.Index().SetName("members_idx"),
	})
	_, _ = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("room_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "room_id", Value: 1}, {Key: "request_status", Value: 1}},
			Options: options.Index().SetName("room_request_status_idx"),
		},
	})
	_, _ = s.requests.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "room_id", Value: 1}},
			Options: options.Index().SetName("room_idx"),
		},
		{
			// Unique on the normalized pair while pending. Racing inserts
			// for the same pair collide here regardless of direction, so
			// the single-pending-request invariant holds without a
			// check-then-act window.
			Keys: bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().SetName("pending_pair_idx").SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": domain.RequestPending}),
		},
	})
}

func (s *Store) withTx(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// Rooms

func (s *Store) CreateRoom(ctx context.Context, room *domain.Room) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := s.rooms.InsertOne(ctx, room)
	return err
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var r domain.Room
	if err := s.rooms.FindOne(ctx, bson.M{"_id": roomID}).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) FindDirectRoom(ctx context.Context, userA, userB string) (*domain.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	filter := bson.M{
		"kind":            domain.RoomDirect,
		"members.user_id": bson.M{"$all": bson.A{userA, userB}},
	}
	var r domain.Room
	if err := s.rooms.FindOne(ctx, filter).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListRoomsForUser(ctx context.Context, userID string) ([]*domain.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	// Descending sort puts rooms without a last message last, which is
	// the order the room list wants.
	opts := options.Find().SetSort(bson.D{{Key: "last_message.created_at", Value: -1}})
	cur, err := s.rooms.Find(ctx, bson.M{"members.user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*domain.Room{}
	for cur.Next(ctx) {
		var r domain.Room
		if err := cur.Decode(&r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, cur.Err()
}

func (s *Store) UpdateRoomMembers(ctx context.Context, roomID string, members []domain.Member, admins []string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := s.rooms.UpdateByID(ctx, roomID, bson.M{"$set": bson.M{
		"members":    members,
		"admins":     admins,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.withTx(ctx, func(sc mongo.SessionContext) error {
		if _, err := s.messages.DeleteMany(sc, bson.M{"room_id": roomID}); err != nil {
			return err
		}
		if _, err := s.requests.DeleteMany(sc, bson.M{"room_id": roomID}); err != nil {
			return err
		}
		res, err := s.rooms.DeleteOne(sc, bson.M{"_id": roomID})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// Messages

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if msg.ReadBy == nil {
		msg.ReadBy = []string{}
	}
	return s.withTx(ctx, func(sc mongo.SessionContext) error {
		if _, err := s.messages.InsertOne(sc, msg); err != nil {
			return err
		}
		_, err := s.rooms.UpdateByID(sc, msg.RoomID, bson.M{"$set": bson.M{
			"last_message": domain.LastMessage{
				Text:      msg.Text,
				SenderID:  msg.SenderID,
				CreatedAt: msg.CreatedAt,
			},
			"updated_at": msg.CreatedAt,
		}})
		return err
	})
}

func (s *Store) ListMessages(ctx context.Context, roomID string, limit int64, before time.Time) ([]*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	filter := bson.M{"room_id": roomID}
	if !before.IsZero() {
		filter["created_at"] = bson.M{"$lt": before}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*domain.Message{}
	for cur.Next(ctx) {
		var m domain.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		if m.ReadBy == nil {
			m.ReadBy = []string{}
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

func (s *Store) LatestMessageBySender(ctx context.Context, roomID, senderID string) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var m domain.Message
	err := s.messages.FindOne(ctx, bson.M{"room_id": roomID, "sender_id": senderID}, opts).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) MarkRead(ctx context.Context, roomID, readerID string, messageIDs []string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	filter := bson.M{
		"room_id":   roomID,
		"sender_id": bson.M{"$ne": readerID},
	}
	if len(messageIDs) > 0 {
		filter["_id"] = bson.M{"$in": messageIDs}
	}
	_, err := s.messages.UpdateMany(ctx, filter, bson.M{"$addToSet": bson.M{"read_by": readerID}})
	return err
}

func (s *Store) CountUnread(ctx context.Context, roomID, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.messages.CountDocuments(ctx, bson.M{
		"room_id":   roomID,
		"sender_id": bson.M{"$ne": userID},
		"read_by":   bson.M{"$ne": userID},
	})
}

// Requests

func (s *Store) CreateRequestRoom(ctx context.Context, room *domain.Room, msg *domain.Message, req *domain.ChatRequest) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if msg.ReadBy == nil {
		msg.ReadBy = []string{}
	}
	err := s.withTx(ctx, func(sc mongo.SessionContext) error {
		if _, err := s.rooms.InsertOne(sc, room); err != nil {
			return err
		}
		if _, err := s.messages.InsertOne(sc, msg); err != nil {
			return err
		}
		_, err := s.requests.InsertOne(sc, req)
		return err
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: a request is already pending", domain.ErrConflict)
	}
	return err
}

func (s *Store) GetRequestByRoom(ctx context.Context, roomID string) (*domain.ChatRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var r domain.ChatRequest
	if err := s.requests.FindOne(ctx, bson.M{"room_id": roomID}).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) FindPendingRequestBetween(ctx context.Context, userA, userB string) (*domain.ChatRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	filter := bson.M{
		"pair_key": domain.PairKey(userA, userB),
		"status":   domain.RequestPending,
	}
	var r domain.ChatRequest
	if err := s.requests.FindOne(ctx, filter).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) ResolveRequest(ctx context.Context, roomID string, status domain.RequestStatus, members []domain.Member) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	now := time.Now().UTC()
	return s.withTx(ctx, func(sc mongo.SessionContext) error {
		// Single indexed lookup with the pending precondition doubles as
		// the once-only transition guard.
		res := s.requests.FindOneAndUpdate(sc,
			bson.M{"room_id": roomID, "status": domain.RequestPending},
			bson.M{"$set": bson.M{"status": status, "updated_at": now}},
		)
		var req domain.ChatRequest
		if err := res.Decode(&req); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return domain.ErrInvalidState
			}
			return err
		}
		if _, err := s.messages.UpdateByID(sc, req.InitialMessageID,
			bson.M{"$set": bson.M{"request_status": status}}); err != nil {
			return err
		}
		update := bson.M{"updated_at": now}
		if status == domain.RequestAccepted {
			update["is_request_pending"] = false
			update["members"] = members
		}
		_, err := s.rooms.UpdateByID(sc, roomID, bson.M{"$set": update})
		return err
	})
}
