package mongodb

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/madrasa-app/madrasa/core/account"
)

type otpDocument struct {
	Code           string    `bson:"code"`
	IssuedAt       time.Time `bson:"issuedAt"`
	ExpiresAt      time.Time `bson:"expiresAt"`
	PreVerified    bool      `bson:"preVerified"`
	FailedAttempts int       `bson:"failedAttempts"`
}

type accountDocument struct {
	ID                string       `bson:"_id"`
	Username          string       `bson:"username"`
	UsernameLower     string       `bson:"usernameLower"`
	Email             string       `bson:"email"`
	Phone             string       `bson:"phone,omitempty"`
	Role              string       `bson:"role"`
	Grade             string       `bson:"grade,omitempty"`
	PasswordHash      []byte       `bson:"passwordHash"`
	IsActive          bool         `bson:"isActive"`
	IsVerified        bool         `bson:"isVerified"`
	CreatedAt         time.Time    `bson:"createdAt"`
	UpdatedAt         time.Time    `bson:"updatedAt"`
	LastLogin         *time.Time   `bson:"lastLogin,omitempty"`
	PasswordChangedAt *time.Time   `bson:"passwordChangedAt,omitempty"`
	OTP               *otpDocument `bson:"otp,omitempty"`
	Version           int64        `bson:"version"`
}

func toDocument(acc account.Account) accountDocument {
	doc := accountDocument{
		ID:                acc.ID,
		Username:          acc.Username,
		UsernameLower:     strings.ToLower(acc.Username),
		Email:             acc.Email,
		Phone:             acc.Phone,
		Role:              acc.Role,
		Grade:             acc.Grade,
		PasswordHash:      acc.PasswordHash,
		IsActive:          acc.IsActive,
		IsVerified:        acc.IsVerified,
		CreatedAt:         acc.CreatedAt,
		UpdatedAt:         acc.UpdatedAt,
		LastLogin:         acc.LastLogin,
		PasswordChangedAt: acc.PasswordChangedAt,
		Version:           acc.Version,
	}
	if ch := acc.OTP; ch != nil {
		doc.OTP = &otpDocument{
			Code:           ch.Code,
			IssuedAt:       ch.IssuedAt,
			ExpiresAt:      ch.ExpiresAt,
			PreVerified:    ch.PreVerified,
			FailedAttempts: ch.FailedAttempts,
		}
	}
	return doc
}

func (doc accountDocument) toAccount() account.Account {
	acc := account.Account{
		ID:                doc.ID,
		Username:          doc.Username,
		Email:             doc.Email,
		Phone:             doc.Phone,
		Role:              doc.Role,
		Grade:             doc.Grade,
		PasswordHash:      doc.PasswordHash,
		IsActive:          doc.IsActive,
		IsVerified:        doc.IsVerified,
		CreatedAt:         doc.CreatedAt.UTC(),
		UpdatedAt:         doc.UpdatedAt.UTC(),
		LastLogin:         utcPtr(doc.LastLogin),
		PasswordChangedAt: utcPtr(doc.PasswordChangedAt),
		Version:           doc.Version,
	}
	if doc.OTP != nil {
		acc.OTP = &account.OTPChallenge{
			Code:           doc.OTP.Code,
			IssuedAt:       doc.OTP.IssuedAt.UTC(),
			ExpiresAt:      doc.OTP.ExpiresAt.UTC(),
			PreVerified:    doc.OTP.PreVerified,
			FailedAttempts: doc.OTP.FailedAttempts,
		}
	}
	return acc
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

type accountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) account.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) CheckUniqueness(ctx context.Context, username, email string, excluded ...account.Account) error {
	ctx, cancel := repo.db.getContext(ctx)
	defer cancel()

	filter := bson.M{"$or": bson.A{
		bson.M{"usernameLower": strings.ToLower(username)},
		bson.M{"email": email},
	}}
	if len(excluded) > 0 {
		ids := make(bson.A, 0, len(excluded))
		for _, acc := range excluded {
			ids = append(ids, acc.ID)
		}
		filter["_id"] = bson.M{"$nin": ids}
	}

	cur, err := repo.db.collectionAccounts().Find(ctx, filter,
		options.Find().SetProjection(bson.M{"usernameLower": 1, "email": 1}).SetLimit(2))
	if err != nil {
		return errors.Wrap(err, "checking uniqueness")
	}
	var docs []accountDocument
	if err = cur.All(ctx, &docs); err != nil {
		return errors.Wrap(err, "checking uniqueness")
	}
	for _, doc := range docs {
		if doc.UsernameLower == strings.ToLower(username) {
			return account.ErrUsernameExists
		}
	}
	if len(docs) > 0 {
		return account.ErrEmailExists
	}
	return nil
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	ctx, cancel := repo.db.getContext(ctx)
	defer cancel()

	acc.Version = 1
	if _, err := repo.db.collectionAccounts().InsertOne(ctx, toDocument(acc)); err != nil {
		return account.Account{}, translateError(err, "inserting account")
	}
	return acc, nil
}

func (repo *accountRepository) GetAccount(ctx context.Context, filter account.GetFilter) (account.Account, error) {
	var q bson.M
	switch {
	case filter.ID != "":
		q = bson.M{"_id": filter.ID}
	case filter.Email != "":
		q = bson.M{"email": filter.Email}
	case filter.Username != "":
		q = bson.M{"usernameLower": strings.ToLower(filter.Username)}
	default:
		return account.Account{}, account.ErrNotFound
	}

	ctx, cancel := repo.db.getContext(ctx)
	defer cancel()

	var doc accountDocument
	if err := repo.db.collectionAccounts().FindOne(ctx, q).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, errors.Wrap(err, "finding account")
	}
	return doc.toAccount(), nil
}

func (repo *accountRepository) QueryAccounts(ctx context.Context, filter account.QueryFilter) ([]account.Account, error) {
	q := bson.M{}
	if filter.Search != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(strings.ToLower(filter.Search))}
		q["$or"] = bson.A{bson.M{"usernameLower": pattern}, bson.M{"email": pattern}}
	}
	if filter.Roles != nil {
		q["role"] = bson.M{"$in": filter.Roles}
	}
	if filter.IsActive != nil {
		q["isActive"] = *filter.IsActive
	}

	ctx, cancel := repo.db.getContext(ctx)
	defer cancel()

	cur, err := repo.db.collectionAccounts().Find(ctx, q, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, errors.Wrap(err, "finding accounts")
	}
	var docs []accountDocument
	if err = cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding accounts")
	}
	accounts := make([]account.Account, 0, len(docs))
	for _, doc := range docs {
		accounts = append(accounts, doc.toAccount())
	}
	return accounts, nil
}

func (repo *accountRepository) UpdateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	ctx, cancel := repo.db.getContext(ctx)
	defer cancel()

	doc := toDocument(acc)
	doc.Version++
	res, err := repo.db.collectionAccounts().ReplaceOne(ctx, bson.M{"_id": acc.ID, "version": acc.Version}, doc)
	if err != nil {
		return account.Account{}, translateError(err, "replacing account")
	}
	if res.MatchedCount == 0 {
		// tell a stale version from a missing document
		n, err := repo.db.collectionAccounts().CountDocuments(ctx, bson.M{"_id": acc.ID})
		if err != nil {
			return account.Account{}, errors.Wrap(err, "counting account")
		}
		if n == 0 {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, account.ErrVersionConflict
	}
	acc.Version = doc.Version
	return acc, nil
}

func (repo *accountRepository) PurgeExpiredOTPs(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := repo.db.getContext(ctx)
	defer cancel()

	res, err := repo.db.collectionAccounts().UpdateMany(ctx,
		bson.M{"otp.expiresAt": bson.M{"$lt": now}},
		bson.M{"$unset": bson.M{"otp": ""}, "$inc": bson.M{"version": 1}},
	)
	if err != nil {
		return 0, errors.Wrap(err, "purging expired otps")
	}
	return int(res.ModifiedCount), nil
}

func translateError(err error, msg string) error {
	if mongo.IsDuplicateKeyError(err) {
		if strings.Contains(err.Error(), "username_unique") {
			return account.ErrUsernameExists
		}
		return account.ErrEmailExists
	}
	return errors.Wrap(err, msg)
}
