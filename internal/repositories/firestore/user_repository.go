package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/tarodan/api/internal/domain"
	pfirestore "github.com/tarodan/api/internal/platform/firestore"
)

const usersCollection = "users"

// UserRepository stores marketplace user profiles.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, usersCollection, nil, nil)
	return &UserRepository{base: base}, nil
}

// FindByID fetches a user profile.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserProfile{}, errors.New("user repository: user id is required")
	}
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return decodeUserDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// UpdateProfile upserts the profile document and returns the stored state.
func (r *UserRepository) UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	userID := strings.TrimSpace(profile.ID)
	if userID == "" {
		return domain.UserProfile{}, errors.New("user repository: user id is required")
	}
	if _, err := r.base.Set(ctx, userID, encodeUserDocument(profile)); err != nil {
		return domain.UserProfile{}, err
	}
	profile.ID = userID
	return profile, nil
}

type userDocument struct {
	DisplayName string    `firestore:"displayName,omitempty"`
	Email       string    `firestore:"email,omitempty"`
	PhoneNumber string    `firestore:"phoneNumber,omitempty"`
	PushToken   string    `firestore:"pushToken,omitempty"`
	Locale      string    `firestore:"locale,omitempty"`
	Roles       []string  `firestore:"roles,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func encodeUserDocument(profile domain.UserProfile) userDocument {
	return userDocument{
		DisplayName: strings.TrimSpace(profile.DisplayName),
		Email:       strings.TrimSpace(profile.Email),
		PhoneNumber: strings.TrimSpace(profile.PhoneNumber),
		PushToken:   strings.TrimSpace(profile.PushToken),
		Locale:      strings.TrimSpace(profile.Locale),
		Roles:       profile.Roles,
		CreatedAt:   profile.CreatedAt.UTC(),
		UpdatedAt:   profile.UpdatedAt.UTC(),
	}
}

func decodeUserDocument(id string, doc userDocument, createdAt, updatedAt time.Time) domain.UserProfile {
	return domain.UserProfile{
		ID:          strings.TrimSpace(id),
		DisplayName: doc.DisplayName,
		Email:       strings.TrimSpace(doc.Email),
		PhoneNumber: strings.TrimSpace(doc.PhoneNumber),
		PushToken:   strings.TrimSpace(doc.PushToken),
		Locale:      strings.TrimSpace(doc.Locale),
		Roles:       doc.Roles,
		CreatedAt:   chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:   chooseTime(doc.UpdatedAt, updatedAt),
	}
}
