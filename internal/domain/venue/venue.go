package venue

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const UnknownField = "Unknown Field"

type TimeSlot struct {
	ID        string `json:"slot_id,omitempty"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	// Price is in whole rupiah; 0 means the platform did not publish one.
	Price int `json:"price"`
	// RawPrice keeps a non-numeric price string as the platform sent it.
	RawPrice  string `json:"raw_price,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

type Field struct {
	Name      string     `json:"field_name"`
	ID        string     `json:"field_id,omitempty"`
	SportType string     `json:"field_sport_type,omitempty"`
	Status    string     `json:"slot_status"`
	Slots     []TimeSlot `json:"time_slots"`
}

// Venue is identified by (Platform, URL). Slots is derived from Fields by
// Finalize and is never authoritative on its own.
type Venue struct {
	Platform   string     `json:"platform"`
	Name       string     `json:"name"`
	URL        string     `json:"url"`
	ID         int64      `json:"venue_id,omitempty"`
	Location   string     `json:"location,omitempty"`
	PriceRange string     `json:"price_range,omitempty"`
	Fields     []Field    `json:"available_fields"`
	Slots      []TimeSlot `json:"time_slots"`
	Status     string     `json:"slot_status"`
}

// ParsePrice reads a platform price string. Non-numeric input is returned as
// raw so it can still be displayed.
func ParsePrice(s string) (amount int, raw string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ""
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, ""
		}
		return n, ""
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		if math.IsInf(f, 0) || f > math.MaxInt {
			return 0, s
		}
		return int(f), ""
	}
	return 0, s
}

// Finalize normalizes the venue into the field-grouped shape. A venue that
// arrived with flat slots and no fields gets its slots grouped by the slot's
// own field name in first-seen order.
func (v *Venue) Finalize() {
	if len(v.Fields) == 0 && len(v.Slots) > 0 {
		v.Fields = groupByField(v.Slots)
	}

	if v.Fields == nil {
		v.Fields = []Field{}
	}
	flat := []TimeSlot{}
	for i := range v.Fields {
		f := &v.Fields[i]
		for j := range f.Slots {
			if f.Slots[j].FieldName == "" {
				f.Slots[j].FieldName = f.Name
			}
		}
		flat = append(flat, f.Slots...)
	}
	v.Slots = flat

	if len(v.Fields) > 0 {
		v.Status = fmt.Sprintf("%d available fields", len(v.Fields))
	} else {
		v.Status = "No available slots"
	}
}

func groupByField(slots []TimeSlot) []Field {
	var (
		out   []Field
		index = map[string]int{}
	)
	for _, s := range slots {
		name := s.FieldName
		if name == "" {
			name = UnknownField
		}
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, Field{Name: name})
		}
		out[i].Slots = append(out[i].Slots, s)
	}
	for i := range out {
		out[i].Status = slotsAvailable(len(out[i].Slots))
	}
	return out
}

func slotsAvailable(n int) string {
	return fmt.Sprintf("%d slots available", n)
}

// MergeFields folds fields discovered on a later date into v. Slots for a
// field already present are appended and its status recomputed; unknown
// fields are appended whole.
func (v *Venue) MergeFields(incoming []Field) {
	for _, nf := range incoming {
		i := v.fieldIndex(nf)
		if i < 0 {
			nf.Slots = cloneSlots(nf.Slots)
			v.Fields = append(v.Fields, nf)
			continue
		}
		f := &v.Fields[i]
		f.Slots = append(f.Slots, nf.Slots...)
		f.Status = slotsAvailable(len(f.Slots))
	}
}

func (v *Venue) fieldIndex(f Field) int {
	for i, existing := range v.Fields {
		if f.ID != "" && existing.ID == f.ID {
			return i
		}
	}
	if f.ID == "" {
		for i, existing := range v.Fields {
			if existing.ID == "" && existing.Name == f.Name {
				return i
			}
		}
	}
	return -1
}

func (v Venue) HasSlots() bool {
	return len(v.Fields) > 0 || len(v.Slots) > 0
}

// MinPositivePrice returns the cheapest priced slot, or math.MaxInt when no
// slot carries a price.
func (v Venue) MinPositivePrice() int {
	best := math.MaxInt
	visit := func(slots []TimeSlot) {
		for _, s := range slots {
			if s.Price > 0 && s.Price < best {
				best = s.Price
			}
		}
	}
	if len(v.Fields) > 0 {
		for _, f := range v.Fields {
			visit(f.Slots)
		}
	} else {
		visit(v.Slots)
	}
	return best
}

// Clone returns a deep copy so callers never share slices with the owner.
func (v Venue) Clone() Venue {
	out := v
	out.Fields = nil
	if v.Fields != nil {
		out.Fields = make([]Field, len(v.Fields))
		for i, f := range v.Fields {
			f.Slots = cloneSlots(f.Slots)
			out.Fields[i] = f
		}
	}
	out.Slots = cloneSlots(v.Slots)
	return out
}

func cloneSlots(s []TimeSlot) []TimeSlot {
	if s == nil {
		return nil
	}
	return append(make([]TimeSlot, 0, len(s)), s...)
}

func CloneAll(vs []Venue) []Venue {
	if vs == nil {
		return nil
	}
	out := make([]Venue, len(vs))
	for i, v := range vs {
		out[i] = v.Clone()
	}
	return out
}
