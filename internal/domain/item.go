package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Item field names as they appear on the wire and in stored documents.
const (
	ItemFieldID          = "id"
	ItemFieldCategory    = "category"
	ItemFieldCondition   = "condition"
	ItemFieldAgeDays     = "age_days"
	ItemFieldAgeYears    = "age_years"
	ItemFieldDescription = "description"
	ItemFieldImage       = "image"
	ItemFieldDateAdded   = "date_added"
	ItemFieldUpdatedAt   = "updatedAt"
)

// Item is a listed secondhand good. Fields the service does not know about
// are carried verbatim in Extra. Nil text fields were never supplied and are
// left out of the document.
type Item struct {
	ID          int64
	Category    *string
	Condition   *string
	AgeDays     *int
	AgeYears    *float64
	Description *string
	Image       string
	DateAdded   time.Time
	UpdatedAt   *time.Time
	Extra       map[string]any
}

// ItemPatch carries the item fields a caller explicitly supplied.
type ItemPatch struct {
	Category    *string
	Condition   *string
	AgeDays     *int
	Description *string
	UpdatedAt   time.Time
}

// AgeInYears converts an age in days to years rounded to one decimal place.
func AgeInYears(days int) float64 {
	return math.Round(float64(days)/365*10) / 10
}

// SetAgeDays stores days and keeps AgeYears consistent with it.
func (i *Item) SetAgeDays(days int) {
	years := AgeInYears(days)
	i.AgeDays = &days
	i.AgeYears = &years
}

// Apply merges the supplied patch fields into the item.
func (i *Item) Apply(p ItemPatch) {
	if p.Category != nil {
		i.Category = copyString(p.Category)
	}
	if p.Condition != nil {
		i.Condition = copyString(p.Condition)
	}
	if p.AgeDays != nil {
		i.SetAgeDays(*p.AgeDays)
	}
	if p.Description != nil {
		i.Description = copyString(p.Description)
	}
	updated := p.UpdatedAt
	i.UpdatedAt = &updated
}

// IsManagedItemField reports whether key is owned by the service and must not
// be taken from caller input.
func IsManagedItemField(key string) bool {
	switch key {
	case ItemFieldID, ItemFieldAgeYears, ItemFieldDateAdded, ItemFieldUpdatedAt:
		return true
	}
	return false
}

func (i Item) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(i.Extra)+9)
	for k, v := range i.Extra {
		doc[k] = v
	}
	doc[ItemFieldID] = i.ID
	doc[ItemFieldDateAdded] = i.DateAdded.UnixMilli()
	if i.Category != nil {
		doc[ItemFieldCategory] = *i.Category
	}
	if i.Condition != nil {
		doc[ItemFieldCondition] = *i.Condition
	}
	if i.Description != nil {
		doc[ItemFieldDescription] = *i.Description
	}
	if i.AgeDays != nil {
		doc[ItemFieldAgeDays] = *i.AgeDays
	}
	if i.AgeYears != nil {
		doc[ItemFieldAgeYears] = *i.AgeYears
	}
	if i.Image != "" {
		doc[ItemFieldImage] = i.Image
	}
	if i.UpdatedAt != nil {
		doc[ItemFieldUpdatedAt] = i.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(doc)
}

func (i *Item) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return err
	}

	*i = Item{}
	for k, v := range doc {
		var err error
		switch k {
		case ItemFieldID:
			i.ID, err = int64Value(v)
		case ItemFieldCategory:
			i.Category, err = stringPtrValue(v)
		case ItemFieldCondition:
			i.Condition, err = stringPtrValue(v)
		case ItemFieldDescription:
			i.Description, err = stringPtrValue(v)
		case ItemFieldImage:
			i.Image, err = stringValue(v)
		case ItemFieldAgeDays:
			var days int64
			if days, err = int64Value(v); err == nil {
				d := int(days)
				i.AgeDays = &d
			}
		case ItemFieldAgeYears:
			if n, ok := v.(json.Number); ok {
				var years float64
				if years, err = n.Float64(); err == nil {
					i.AgeYears = &years
				}
			} else {
				err = fmt.Errorf("expected number")
			}
		case ItemFieldDateAdded:
			var ms int64
			if ms, err = int64Value(v); err == nil {
				i.DateAdded = time.UnixMilli(ms).UTC()
			}
		case ItemFieldUpdatedAt:
			var raw string
			if raw, err = stringValue(v); err == nil {
				var ts time.Time
				if ts, err = time.Parse(time.RFC3339Nano, raw); err == nil {
					i.UpdatedAt = &ts
				}
			}
		default:
			if i.Extra == nil {
				i.Extra = make(map[string]any)
			}
			i.Extra[k] = v
		}
		if err != nil {
			return fmt.Errorf("item field %s: %w", k, err)
		}
	}
	return nil
}

func int64Value(v any) (int64, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("expected number")
	}
	return n.Int64()
}

func stringPtrValue(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s, err := stringValue(v)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func copyString(s *string) *string {
	v := *s
	return &v
}

func stringValue(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string")
	}
	return s, nil
}
