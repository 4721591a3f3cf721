package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"secondchance/internal/domain"
	"secondchance/internal/repository"
	"secondchance/internal/storage"
)

const (
	UpdateSucceeded = "success"
	UpdateFailed    = "failed"
)

// ImageUpload is a file submitted alongside a new item.
type ImageUpload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// maxAgeDays bounds age_days so it always fits the stored integer.
const maxAgeDays = math.MaxInt32

// updatableItemFields are the only keys UpdateItem reads; anything else in
// an update body is ignored.
var updatableItemFields = []string{
	domain.ItemFieldCategory,
	domain.ItemFieldCondition,
	domain.ItemFieldAgeDays,
	domain.ItemFieldDescription,
}

// ItemService coordinates item operations backed by the item store.
type ItemService interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
	CreateItem(ctx context.Context, fields map[string]any, image *ImageUpload) (*domain.Item, error)
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	// UpdateItem changes the updatable fields present in fields and reports
	// UpdateSucceeded when the item can be read back after the write. An
	// unknown id is reported before any field is looked at.
	UpdateItem(ctx context.Context, id string, fields map[string]any) (string, error)
	DeleteItem(ctx context.Context, id string) error
}

type itemService struct {
	items  repository.ItemRepository
	images storage.Service
	log    logrus.FieldLogger
}

func NewItemService(items repository.ItemRepository, images storage.Service, log logrus.FieldLogger) ItemService {
	return &itemService{
		items:  items,
		images: images,
		log:    log,
	}
}

func (s *itemService) ListItems(ctx context.Context) ([]domain.Item, error) {
	items, err := s.items.List(ctx)
	if err != nil {
		return nil, Internal(err)
	}
	return items, nil
}

func (s *itemService) CreateItem(ctx context.Context, fields map[string]any, image *ImageUpload) (*domain.Item, error) {
	item, err := itemFromFields(fields)
	if err != nil {
		return nil, err
	}
	item.DateAdded = time.Now().UTC()

	var storedName string
	if image != nil {
		if s.images == nil {
			return nil, Internal(errors.New("image storage is not configured"))
		}
		name := storage.CleanName(image.Filename)
		if name == "" {
			return nil, Validation("invalid file name")
		}
		location, err := s.images.Save(ctx, name, image.ContentType, image.Body)
		if err != nil {
			return nil, Internal(err)
		}
		item.Image = location
		storedName = name
	}

	if err := s.items.CreateNext(ctx, item); err != nil {
		if storedName != "" {
			if delErr := s.images.Delete(ctx, storedName); delErr != nil {
				s.log.WithError(delErr).WithField("file", storedName).Warn("remove orphaned image")
			}
		}
		return nil, Internal(err)
	}

	s.log.WithField("item_id", item.ID).Info("item created")
	return item, nil
}

func (s *itemService) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	itemID, ok := parseItemID(id)
	if !ok {
		return nil, itemNotFound()
	}
	item, err := s.items.Get(ctx, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, itemNotFound()
		}
		return nil, Internal(err)
	}
	return item, nil
}

func (s *itemService) UpdateItem(ctx context.Context, id string, fields map[string]any) (string, error) {
	existing, err := s.GetItem(ctx, id)
	if err != nil {
		return "", err
	}

	patch, err := itemPatchFromFields(fields)
	if err != nil {
		return "", err
	}
	patch.UpdatedAt = time.Now().UTC()

	updated, err := s.items.Update(ctx, existing.ID, patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return UpdateFailed, nil
		}
		return "", Internal(err)
	}
	if updated == nil {
		return UpdateFailed, nil
	}
	return UpdateSucceeded, nil
}

func (s *itemService) DeleteItem(ctx context.Context, id string) error {
	existing, err := s.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if err := s.items.Delete(ctx, existing.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return itemNotFound()
		}
		return Internal(err)
	}
	return nil
}

func itemNotFound() *Error {
	return NotFound("secondChanceItem not found")
}

func parseItemID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// itemFromFields splits caller input into the known item fields and the
// extra fields kept verbatim. Service-managed keys are dropped.
func itemFromFields(fields map[string]any) (*domain.Item, error) {
	item := &domain.Item{}
	for k, v := range fields {
		if domain.IsManagedItemField(k) {
			continue
		}
		switch k {
		case domain.ItemFieldCategory, domain.ItemFieldCondition, domain.ItemFieldDescription, domain.ItemFieldImage:
			str, err := textValue(v)
			if err != nil {
				return nil, Validation("validation failed", FieldViolation{Field: k, Message: err.Error()})
			}
			switch k {
			case domain.ItemFieldCategory:
				item.Category = str
			case domain.ItemFieldCondition:
				item.Condition = str
			case domain.ItemFieldDescription:
				item.Description = str
			case domain.ItemFieldImage:
				if str != nil {
					item.Image = *str
				}
			}
		case domain.ItemFieldAgeDays:
			days, err := ageDaysValue(v)
			if err != nil {
				return nil, Validation("validation failed", FieldViolation{Field: k, Message: err.Error()})
			}
			item.SetAgeDays(days)
		default:
			if item.Extra == nil {
				item.Extra = make(map[string]any)
			}
			item.Extra[k] = v
		}
	}
	return item, nil
}

// itemPatchFromFields reads the updatable fields out of an update body.
// Absent and null fields are left unchanged; every bad field is reported.
func itemPatchFromFields(fields map[string]any) (domain.ItemPatch, error) {
	var (
		patch      domain.ItemPatch
		violations []FieldViolation
	)
	for _, k := range updatableItemFields {
		v, ok := fields[k]
		if !ok || v == nil {
			continue
		}
		if k == domain.ItemFieldAgeDays {
			days, err := ageDaysValue(v)
			if err != nil {
				violations = append(violations, FieldViolation{Field: k, Message: err.Error()})
				continue
			}
			patch.AgeDays = &days
			continue
		}
		str, err := textValue(v)
		if err != nil {
			violations = append(violations, FieldViolation{Field: k, Message: err.Error()})
			continue
		}
		switch k {
		case domain.ItemFieldCategory:
			patch.Category = str
		case domain.ItemFieldCondition:
			patch.Condition = str
		case domain.ItemFieldDescription:
			patch.Description = str
		}
	}
	if len(violations) > 0 {
		return domain.ItemPatch{}, Validation("validation failed", violations...)
	}
	return patch, nil
}

func textValue(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	str, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("must be a string")
	}
	return &str, nil
}

func ageDaysValue(v any) (int, error) {
	var days float64
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("must be a whole number")
		}
		days = f
	case float64:
		days = n
	case int:
		days = float64(n)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("must be a whole number")
		}
		days = float64(i)
	default:
		return 0, fmt.Errorf("must be a whole number")
	}
	if days != math.Trunc(days) {
		return 0, fmt.Errorf("must be a whole number")
	}
	if days < 0 {
		return 0, fmt.Errorf("must be at least 0")
	}
	if days > maxAgeDays {
		return 0, fmt.Errorf("must be at most %d", maxAgeDays)
	}
	return int(days), nil
}
