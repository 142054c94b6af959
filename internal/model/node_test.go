package model

import (
	"errors"
	"reflect"
	"testing"
)

// TestNodeRecordRow verifies that a record renders positionally against an
// arbitrary field order, host duplicated into Id and Label.
func TestNodeRecordRow(t *testing.T) {
	t.Parallel()

	t.Run("successful record fills host, metrics and gephi columns", func(t *testing.T) {
		t.Parallel()

		record := NewNodeRecord("lemmy.example")
		record.Set("version", "0.19.3")
		record.SetInt("users", 1234)
		record.SetBool("captcha_enabled", true)

		fields := []string{FieldHost, "version", "users", "captcha_enabled", FieldError, FieldID, FieldLabel}
		got := record.Row(fields)
		want := []string{"lemmy.example", "0.19.3", "1234", "true", "", "lemmy.example", "lemmy.example"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected row %v, got %v", want, got)
		}
	})

	t.Run("failed record carries its error string", func(t *testing.T) {
		t.Parallel()

		record := NewNodeRecord("down.example")
		record.Fail(errors.New("error code 500 on https://down.example/api/v3/site"))

		row := record.Row(RequiredNodeFields())
		if row[1] != "error code 500 on https://down.example/api/v3/site" {
			t.Errorf("expected error column to carry the failure, got %q", row[1])
		}
	})

	t.Run("unset fields render as empty cells", func(t *testing.T) {
		t.Parallel()

		record := NewNodeRecord("host.example")
		row := record.Row([]string{FieldHost, "never_set", FieldError})
		if row[1] != "" {
			t.Errorf("expected empty cell for unset field, got %q", row[1])
		}
	})

	t.Run("Fail with nil keeps the record successful", func(t *testing.T) {
		t.Parallel()

		record := NewNodeRecord("ok.example")
		record.Fail(nil)
		if record.Error != "" {
			t.Errorf("expected empty error, got %q", record.Error)
		}
	})
}

// TestRelationRow verifies the Source/Target/Weight rendering used by every
// relation dataset.
func TestRelationRow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		relation Relation
		want     []string
	}{
		{
			name:     "linked edge",
			relation: Relation{Source: "a.example", Target: "b.example", Weight: WeightLinked},
			want:     []string{"a.example", "b.example", "1"},
		},
		{
			name:     "blocked edge",
			relation: Relation{Source: "a.example", Target: "b.example", Weight: WeightBlocked},
			want:     []string{"a.example", "b.example", "-1"},
		},
		{
			name:     "aggregated count",
			relation: Relation{Source: "a.example", Target: "b.example", Weight: 42},
			want:     []string{"a.example", "b.example", "42"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.relation.Row(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

// TestRelationFields documents the exact header downstream graph tools
// depend on.
func TestRelationFields(t *testing.T) {
	t.Parallel()

	want := []string{"Source", "Target", "Weight"}
	if got := RelationFields(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
