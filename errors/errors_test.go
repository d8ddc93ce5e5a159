package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseBuild,
				Kind:     KindShapeMismatch,
				Path:     []string{"line", "from", "x"},
				Expected: "int64",
				Found:    "string",
				Detail:   "cannot convert",
			},
			contains: []string{"[build]", "shape_mismatch", "line.from.x", "expected int64", "found string", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhasePeek,
				Kind:  KindIndexOutOfRange,
			},
			contains: []string{"[peek]", "index_out_of_range"},
		},
		{
			name: "missing fields",
			err: &Error{
				Phase:    PhaseBuild,
				Kind:     KindIncompleteValue,
				Expected: "Point",
				Missing:  []string{"y", "z"},
			},
			contains: []string{"incomplete_value", "Point", "missing y, z"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseDecode,
				Kind:   KindInvalidData,
				Detail: "bad token",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[decode]", "invalid_data", "bad token", "caused by", "underlying error"},
		},
		{
			name: "location",
			err: &Error{
				Phase:    PhaseDecode,
				Kind:     KindNoSuchField,
				Location: "line 3, column 7",
			},
			contains: []string{"(line 3, column 7)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestJoinPath(t *testing.T) {
	tests := []struct {
		path []string
		want string
	}{
		{nil, ""},
		{[]string{"a"}, "a"},
		{[]string{"a", "b"}, "a.b"},
		{[]string{"items", "[3]", "name"}, "items[3].name"},
		{[]string{"[0]", "[1]"}, "[0][1]"},
		{[]string{"shape", "::Circle", "radius"}, "shape::Circle.radius"},
	}
	for _, tt := range tests {
		if got := JoinPath(tt.path); got != tt.want {
			t.Errorf("JoinPath(%v) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseEncode,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseBuild,
		Kind:  KindShapeMismatch,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseBuild, Kind: KindShapeMismatch}) {
		t.Error("Is should match same phase and kind")
	}

	if err.Is(&Error{Phase: PhaseDecode, Kind: KindShapeMismatch}) {
		t.Error("Is should not match different phase")
	}

	if err.Is(&Error{Phase: PhaseBuild, Kind: KindTypeMismatch}) {
		t.Error("Is should not match different kind")
	}

	if !err.Is(&Error{Kind: KindShapeMismatch}) {
		t.Error("Is should match any phase when target phase is empty")
	}

	if !errors.Is(err, &Error{Phase: PhaseBuild, Kind: KindShapeMismatch}) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseBuild, KindTypeMismatch).
		Path("user", "name").
		Expected("string").
		Found("int").
		Value(42).
		Cause(cause).
		Location("offset 12").
		Detail("expected %s, got %s", "string", "int").
		Build()

	if err.Phase != PhaseBuild {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseBuild)
	}
	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if len(err.Path) != 2 || err.Path[0] != "user" || err.Path[1] != "name" {
		t.Errorf("Path = %v, want [user name]", err.Path)
	}
	if err.Expected != "string" {
		t.Errorf("Expected = %v, want 'string'", err.Expected)
	}
	if err.Found != "int" {
		t.Errorf("Found = %v, want 'int'", err.Found)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Location != "offset 12" {
		t.Errorf("Location = %v, want 'offset 12'", err.Location)
	}
	if err.Detail != "expected string, got int" {
		t.Errorf("Detail = %v, want 'expected string, got int'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("TypeMismatch", func(t *testing.T) {
		err := TypeMismatch(PhaseBuild, []string{"field"}, "int", "string")
		if err.Kind != KindTypeMismatch {
			t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
		}
		if err.Expected != "int" || err.Found != "string" {
			t.Errorf("Expected=%v Found=%v", err.Expected, err.Found)
		}
	})

	t.Run("NoSuchField", func(t *testing.T) {
		err := NoSuchField(PhaseBuild, nil, "Point", "w")
		if err.Kind != KindNoSuchField {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNoSuchField)
		}
		if !strings.Contains(err.Error(), `"w"`) {
			t.Errorf("message %q should name the field", err.Error())
		}
	})

	t.Run("IndexOutOfRange", func(t *testing.T) {
		err := IndexOutOfRange(PhasePeek, []string{"items"}, 10, 5)
		if err.Kind != KindIndexOutOfRange {
			t.Errorf("Kind = %v, want %v", err.Kind, KindIndexOutOfRange)
		}
		if err.Value != 10 {
			t.Errorf("Value = %v, want 10", err.Value)
		}
	})

	t.Run("NoSuchVariant", func(t *testing.T) {
		err := NoSuchVariant(PhaseBuild, nil, "Shape", "Triangle")
		if err.Kind != KindNoSuchVariant {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNoSuchVariant)
		}
	})

	t.Run("IncompleteValue", func(t *testing.T) {
		err := IncompleteValue(PhaseBuild, nil, "Point", []string{"y"})
		if err.Kind != KindIncompleteValue {
			t.Errorf("Kind = %v, want %v", err.Kind, KindIncompleteValue)
		}
		if len(err.Missing) != 1 || err.Missing[0] != "y" {
			t.Errorf("Missing = %v, want [y]", err.Missing)
		}
	})

	t.Run("AllocationFailed", func(t *testing.T) {
		err := AllocationFailed(PhaseBuild, nil, 11, 10)
		if err.Kind != KindAllocation {
			t.Errorf("Kind = %v, want %v", err.Kind, KindAllocation)
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		err := Overflow(PhaseBuild, nil, 300, "uint8")
		if err.Kind != KindOverflow {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOverflow)
		}
	})

	t.Run("DepthExceeded", func(t *testing.T) {
		err := DepthExceeded(PhaseDrive, nil, 4)
		if err.Kind != KindDepthExceeded {
			t.Errorf("Kind = %v, want %v", err.Kind, KindDepthExceeded)
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		cause := errors.New("io")
		err := Wrap(PhaseDecode, KindInvalidData, cause, "reading header")
		if !errors.Is(err, cause) {
			t.Error("Wrap should keep cause reachable")
		}
	})
}

func TestWithLocation(t *testing.T) {
	if WithLocation(nil, "x") != nil {
		t.Fatal("WithLocation(nil) should be nil")
	}

	orig := NoSuchField(PhaseDecode, []string{"a"}, "T", "b")
	got := WithLocation(orig, "line 2, column 1")
	var e *Error
	if !errors.As(got, &e) {
		t.Fatalf("WithLocation returned %T", got)
	}
	if e.Location != "line 2, column 1" {
		t.Errorf("Location = %q", e.Location)
	}
	if orig.Location != "" {
		t.Error("WithLocation must not mutate the original error")
	}

	plain := WithLocation(errors.New("boom"), "offset 4")
	if !errors.As(plain, &e) || e.Kind != KindInvalidData {
		t.Errorf("plain error should wrap as invalid_data, got %v", plain)
	}
}
