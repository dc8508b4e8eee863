package storage

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/google/uuid"
)

// Object names inside an order folder.
const (
	OriginalName  = "original.jpg"
	ValidatedName = "validated.jpg"
	PrintName     = "print.jpg"
)

const jpegContentType = "image/jpeg"

// NewOrderID returns a fresh random order id.
func NewOrderID() string { return uuid.NewString() }

// ValidateOrderID accepts only UUIDs, which also keeps keys inside the
// order namespace.
func ValidateOrderID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid order id %q: %w", id, err)
	}
	return nil
}

// Key returns the object key of name within the order.
func Key(orderID, name string) string { return orderID + "/" + name }

// StoredOrder lists the URLs of a validated order.
type StoredOrder struct {
	OrderID      string `json:"order_id"`
	ValidatedURL string `json:"validated_image_url"`
	PrintURL     string `json:"print_image_url,omitempty"`
}

// OrderStore reads and writes the photos of an order.
type OrderStore struct {
	store Store
	cfg   Config
}

// NewOrderStore wraps store.
func NewOrderStore(store Store, cfg Config) *OrderStore {
	return &OrderStore{store: store, cfg: cfg}
}

// Store returns the underlying object store.
func (o *OrderStore) Store() Store { return o.store }

// SaveOriginal stores the uploaded photo as the order original.
func (o *OrderStore) SaveOriginal(ctx context.Context, orderID string, data []byte) (string, error) {
	if err := ValidateOrderID(orderID); err != nil {
		return "", err
	}
	return o.store.Put(ctx, Key(orderID, OriginalName), data, jpegContentType)
}

// LoadOriginal fetches and decodes the order original.
func (o *OrderStore) LoadOriginal(ctx context.Context, orderID string) (image.Image, error) {
	if err := ValidateOrderID(orderID); err != nil {
		return nil, err
	}
	data, err := o.store.Get(ctx, Key(orderID, OriginalName))
	if err != nil {
		return nil, err
	}
	img, _, err := utils.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("decode original of order %s: %w", orderID, err)
	}
	return img, nil
}

// StoreValidated saves the validated photo and, when printSheet is not nil,
// the JPEG print sheet, and returns URLs for both.
func (o *OrderStore) StoreValidated(ctx context.Context, orderID string, validated image.Image, printSheet []byte) (*StoredOrder, error) {
	if err := ValidateOrderID(orderID); err != nil {
		return nil, err
	}
	data, err := utils.EncodeJPEG(validated, o.cfg.JPEGQuality)
	if err != nil {
		return nil, err
	}
	out := &StoredOrder{OrderID: orderID}
	if out.ValidatedURL, err = o.putAndLink(ctx, Key(orderID, ValidatedName), data); err != nil {
		return nil, err
	}
	if printSheet != nil {
		if out.PrintURL, err = o.putAndLink(ctx, Key(orderID, PrintName), printSheet); err != nil {
			return nil, err
		}
	}
	slog.Info("Images stored", "order_id", orderID)
	return out, nil
}

func (o *OrderStore) putAndLink(ctx context.Context, key string, data []byte) (string, error) {
	if _, err := o.store.Put(ctx, key, data, jpegContentType); err != nil {
		return "", err
	}
	return o.store.URL(ctx, key, o.cfg.URLExpiry)
}
