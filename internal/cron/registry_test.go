package cron

import (
	"context"
	"testing"
)

type noopJob struct{ name string }

func (j noopJob) Name() string                  { return j.name }
func (j noopJob) Run(ctx context.Context) error { return nil }

func TestRegistryPreservesOrderAndSkipsNil(t *testing.T) {
	registry := NewRegistry(noopJob{name: "a"}, nil, noopJob{name: "b"})
	registry.Register(noopJob{name: "c"})
	registry.Register(nil)

	jobs := registry.Jobs()
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if jobs[i].Name() != want {
			t.Fatalf("job %d = %s, want %s", i, jobs[i].Name(), want)
		}
	}
}
