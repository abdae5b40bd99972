package diagnostics

import (
	"strings"
	"testing"
)

func TestSpanJoin(t *testing.T) {
	a := Span{Start: 5, End: 10, StartPos: Position{Line: 1, Column: 6}, EndPos: Position{Line: 1, Column: 11}}
	b := Span{Start: 2, End: 8, StartPos: Position{Line: 1, Column: 3}, EndPos: Position{Line: 1, Column: 9}}
	joined := a.Join(b)
	if joined.Start != 2 || joined.End != 10 {
		t.Errorf("expected joined span [2,10), got [%d,%d)", joined.Start, joined.End)
	}
}

func TestSpanCovers(t *testing.T) {
	s := Span{Start: 3, End: 7}
	if s.Covers(2) || s.Covers(7) {
		t.Error("expected endpoints to be excluded from Covers")
	}
	if !s.Covers(3) || !s.Covers(6) {
		t.Error("expected [3,7) to cover 3 and 6")
	}
}

func TestWithSuggestionAndRelatedAreImmutable(t *testing.T) {
	base := New(CodePropertyNotFound, SeverityError, Span{}, "no such property %q", "nam")
	withSuggestion := base.WithSuggestion("did you mean 'name'?", "name")

	if len(base.Suggestions) != 0 {
		t.Error("expected original diagnostic to be unmodified")
	}
	if len(withSuggestion.Suggestions) != 1 || withSuggestion.Suggestions[0].Replacement != "name" {
		t.Errorf("expected one suggestion with replacement 'name', got %+v", withSuggestion.Suggestions)
	}

	withRelated := withSuggestion.WithRelated(Span{Start: 1, End: 2})
	if len(withSuggestion.Related) != 0 {
		t.Error("expected withSuggestion to be unmodified by WithRelated")
	}
	if len(withRelated.Related) != 1 {
		t.Errorf("expected one related span, got %d", len(withRelated.Related))
	}
}

func TestFormatHumanIncludesCaret(t *testing.T) {
	src := "Patient.nam"
	d := New(CodePropertyNotFound, SeverityError, Span{
		Start: 8, End: 11,
		StartPos: Position{Line: 1, Column: 9},
		EndPos:   Position{Line: 1, Column: 12},
	}, "no such property %q", "nam")

	out := FormatHuman(src, []Diagnostic{d})
	if !strings.Contains(out, "E104") {
		t.Error("expected output to contain diagnostic code E104")
	}
	if !strings.Contains(out, "^^^") {
		t.Errorf("expected a 3-wide caret underline, got:\n%s", out)
	}
}

func TestFormatJSONNeverNull(t *testing.T) {
	out, err := FormatJSON(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "[]" {
		t.Errorf("expected empty array for nil diagnostics, got %s", out)
	}
}
