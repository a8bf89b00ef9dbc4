package memdb

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/justestif/playgroup/internal/db"
)

func (q queries) findUser(match func(db.User) bool) (*db.User, error) {
	i := slices.IndexFunc(q.st().users, match)
	if i < 0 {
		return nil, db.ErrNotFound
	}
	u := q.st().users[i]
	return &u, nil
}

func (q queries) GetUser(ctx context.Context, id uuid.UUID) (*db.User, error) {
	defer q.acquire()()
	return q.findUser(func(u db.User) bool { return u.ID == id })
}

func (q queries) GetUserByFID(ctx context.Context, fid int64) (*db.User, error) {
	defer q.acquire()()
	return q.findUser(func(u db.User) bool { return u.FID != nil && *u.FID == fid })
}

func (q queries) GetUserByAuthID(ctx context.Context, authID string) (*db.User, error) {
	defer q.acquire()()
	return q.findUser(func(u db.User) bool { return u.AuthID != nil && *u.AuthID == authID })
}

func (q queries) GetUnlinkedUserByWallet(ctx context.Context, wallet string) (*db.User, error) {
	defer q.acquire()()
	return q.findUser(func(u db.User) bool {
		return u.AuthID == nil && u.WalletAddress != nil && *u.WalletAddress == wallet
	})
}

func (q queries) authIDTaken(authID string) bool {
	return slices.ContainsFunc(q.st().users, func(u db.User) bool {
		return u.AuthID != nil && *u.AuthID == authID
	})
}

func (q queries) InsertUser(ctx context.Context, user *db.User) error {
	defer q.acquire()()
	if user.FID != nil && slices.ContainsFunc(q.st().users, func(u db.User) bool {
		return u.FID != nil && *u.FID == *user.FID
	}) {
		return fmt.Errorf("inserting user: %w", &db.ConstraintError{Constraint: db.ConstraintUserFID})
	}
	if user.AuthID != nil && q.authIDTaken(*user.AuthID) {
		return fmt.Errorf("inserting user: %w", &db.ConstraintError{Constraint: db.ConstraintUserAuthID})
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = q.stamp()
	q.st().users = append(q.st().users, *user)
	return nil
}

func (q queries) LinkAuthID(ctx context.Context, id uuid.UUID, authID string) error {
	defer q.acquire()()
	i := slices.IndexFunc(q.st().users, func(u db.User) bool { return u.ID == id })
	if i < 0 || q.st().users[i].AuthID != nil {
		return db.ErrNotFound
	}
	if q.authIDTaken(authID) {
		return fmt.Errorf("linking auth id: %w", &db.ConstraintError{Constraint: db.ConstraintUserAuthID})
	}
	linked := authID
	q.st().users[i].AuthID = &linked
	return nil
}

func (q queries) SetUserWallet(ctx context.Context, id uuid.UUID, wallet string) error {
	defer q.acquire()()
	i := slices.IndexFunc(q.st().users, func(u db.User) bool { return u.ID == id })
	if i >= 0 && q.st().users[i].WalletAddress == nil {
		w := wallet
		q.st().users[i].WalletAddress = &w
	}
	return nil
}
