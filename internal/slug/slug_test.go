package slug

import (
	"context"
	"errors"
	"regexp"
	"testing"
)

func TestBase(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Main Library", "main-library"},
		{"  Science  Hall (North) ", "science-hall-north"},
		{"Café 42", "caf-42"},
		{"--A--B--", "a-b"},
		{"UPPER_case", "upper-case"},
		{"", ""},
		{"!!!", ""},
		{"雪", ""},
	}
	for _, tc := range tests {
		if got := Base(tc.in); got != tc.want {
			t.Fatalf("Base(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestAllocate_SuffixesOnCollision(t *testing.T) {
	taken := map[string]bool{"library": true, "library-1": true}
	got, err := Allocate(context.Background(), "Library", "north", func(_ context.Context, s string) (bool, error) {
		return taken[s], nil
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != "library-2" {
		t.Fatalf("slug=%q want library-2", got)
	}
}

func TestAllocate_UniqueAcrossSequence(t *testing.T) {
	taken := map[string]bool{}
	exists := func(_ context.Context, s string) (bool, error) { return taken[s], nil }
	valid := regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

	names := []string{"Lab", "lab", "LAB!", "Lab 1", "lab-1", "Lab", "Lab 2"}
	for _, n := range names {
		s, err := Allocate(context.Background(), n, "north", exists)
		if err != nil {
			t.Fatalf("Allocate(%q): %v", n, err)
		}
		if taken[s] {
			t.Fatalf("slug %q allocated twice", s)
		}
		if !valid.MatchString(s) {
			t.Fatalf("slug %q is not url safe", s)
		}
		taken[s] = true
	}
	if len(taken) != len(names) {
		t.Fatalf("got %d distinct slugs want %d", len(taken), len(names))
	}
}

func TestAllocate_EmptyBase(t *testing.T) {
	called := false
	_, err := Allocate(context.Background(), " ?? ", "north", func(context.Context, string) (bool, error) {
		called = true
		return false, nil
	})
	if !errors.Is(err, ErrEmptySlug) {
		t.Fatalf("err=%v want ErrEmptySlug", err)
	}
	if called {
		t.Fatalf("predicate must not be consulted for an empty base")
	}
}

func TestAllocate_PropagatesPredicateError(t *testing.T) {
	boom := errors.New("store down")
	_, err := Allocate(context.Background(), "Gym", "north", func(context.Context, string) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want wrapped store error", err)
	}
}

func TestAllocate_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Allocate(ctx, "Gym", "north", func(context.Context, string) (bool, error) {
		calls++
		if calls == 3 {
			cancel()
		}
		return true, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if calls != 3 {
		t.Fatalf("calls=%d want 3", calls)
	}
}
