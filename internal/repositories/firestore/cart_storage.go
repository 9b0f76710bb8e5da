package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/tomisteven/cliente-natural-pets/internal/platform/firestore"
	"github.com/tomisteven/cliente-natural-pets/internal/repositories"
)

const cartSessionCollection = "cartSessions"

type cartSessionDocument struct {
	Values    map[string]string `firestore:"values"`
	UpdatedAt time.Time         `firestore:"updatedAt"`
}

// CartStorage persists cart session values as one Firestore document per session.
type CartStorage struct {
	base  *pfirestore.BaseRepository[cartSessionDocument]
	clock func() time.Time
}

var _ repositories.CartStorage = (*CartStorage)(nil)

// NewCartStorage constructs a Firestore-backed cart storage.
func NewCartStorage(provider *pfirestore.Provider) (*CartStorage, error) {
	if provider == nil {
		return nil, errors.New("cart storage requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartSessionDocument](provider, cartSessionCollection, encodeCartSession, nil)
	return &CartStorage{
		base:  base,
		clock: time.Now,
	}, nil
}

// Get implements repositories.CartStorage.
func (s *CartStorage) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	sessionID, key = strings.TrimSpace(sessionID), strings.TrimSpace(key)
	if sessionID == "" || key == "" {
		return nil, repositories.NewStorageError("firestore.cart.get", repositories.StorageErrorInvalidInput, nil)
	}

	doc, err := s.base.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	value, ok := doc.Data.Values[key]
	if !ok {
		return nil, repositories.NewStorageError("firestore.cart.get", repositories.StorageErrorNotFound, nil)
	}
	return []byte(value), nil
}

// Put implements repositories.CartStorage. Other keys of the session are preserved.
func (s *CartStorage) Put(ctx context.Context, sessionID, key string, value []byte) error {
	sessionID, key = strings.TrimSpace(sessionID), strings.TrimSpace(key)
	if sessionID == "" || key == "" {
		return repositories.NewStorageError("firestore.cart.put", repositories.StorageErrorInvalidInput, nil)
	}

	doc := cartSessionDocument{
		Values:    map[string]string{key: string(value)},
		UpdatedAt: s.clock().UTC(),
	}
	_, err := s.base.Set(ctx, sessionID, doc, firestore.MergeAll)
	return err
}

// Delete implements repositories.CartStorage.
func (s *CartStorage) Delete(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return repositories.NewStorageError("firestore.cart.delete", repositories.StorageErrorInvalidInput, nil)
	}
	return s.base.Delete(ctx, sessionID)
}

// encodeCartSession emits a map so writes can merge into the existing document.
func encodeCartSession(_ context.Context, doc cartSessionDocument) (any, error) {
	values := make(map[string]any, len(doc.Values))
	for key, value := range doc.Values {
		values[key] = value
	}
	return map[string]any{
		"values":    values,
		"updatedAt": doc.UpdatedAt,
	}, nil
}
