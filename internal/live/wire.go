package live

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"stockmind/internal/domain"
)

// UnitToStruct encodes a unit as a protobuf Struct.
func UnitToStruct(u domain.Unit) (*structpb.Struct, error) {
	m := map[string]any{
		"id":          u.ID,
		"kind":        string(u.Kind),
		"name":        u.Name,
		"description": u.Description,
		"status":      string(u.Status),
		"progress":    u.Progress,
	}
	if !u.StartedAt.IsZero() {
		m["startedAt"] = u.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if u.RunID != "" {
		m["runId"] = u.RunID
	}
	return structpb.NewStruct(m)
}

// StructToUnit decodes a unit encoded by UnitToStruct.
func StructToUnit(s *structpb.Struct) (domain.Unit, error) {
	f := s.GetFields()
	str := func(k string) string { return f[k].GetStringValue() }

	u := domain.Unit{
		ID:          str("id"),
		Kind:        domain.UnitKind(str("kind")),
		Name:        str("name"),
		Description: str("description"),
		Status:      domain.Status(str("status")),
		Progress:    int(f["progress"].GetNumberValue()),
		RunID:       str("runId"),
	}
	if u.ID == "" {
		return domain.Unit{}, fmt.Errorf("unit without id")
	}
	if ts := str("startedAt"); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return domain.Unit{}, fmt.Errorf("unit %s startedAt: %w", u.ID, err)
		}
		u.StartedAt = t
	}
	return u, nil
}
