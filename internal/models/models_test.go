package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimeAcceptsServerLayouts(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.UTC)
	tests := []struct {
		name string
		raw  string
	}{
		{"rfc3339", `"2024-03-01T12:30:45.123456Z"`},
		{"offset", `"2024-03-01T14:30:45.123456+02:00"`},
		{"naive iso", `"2024-03-01T12:30:45.123456"`},
		{"naive space", `"2024-03-01 12:30:45.123456"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Time
			if err := json.Unmarshal([]byte(tt.raw), &got); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.raw, err)
			}
			if !got.Equal(NewTime(want)) {
				t.Errorf("got %v, want %v", got, want)
			}
		})
	}
}

func TestTimeNullAndGarbage(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"id":1,"edited_at":null,"created_at":"2024-01-01T00:00:00"}`), &m); err != nil {
		t.Fatal(err)
	}
	if m.EditedAt != nil {
		t.Errorf("EditedAt = %v, want nil", m.EditedAt)
	}

	var bad Time
	if err := json.Unmarshal([]byte(`"yesterday"`), &bad); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}

func TestHasMember(t *testing.T) {
	team := Team{Members: []User{{ID: 1}, {ID: 2}}}
	if !team.HasMember(2) {
		t.Error("HasMember(2) = false")
	}
	if team.HasMember(3) {
		t.Error("HasMember(3) = true")
	}
}
