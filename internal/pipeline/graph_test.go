package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, Inputs) (Result, error) { return Result{}, nil }

func TestNew_TopologicalOrder(t *testing.T) {
	g, err := New(
		Task{Name: "c", Deps: []string{"b"}, Run: noop},
		Task{Name: "b", Deps: []string{"a"}, Run: noop},
		Task{Name: "a", Run: noop},
		Task{Name: "z", Run: noop},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "z"}, g.Order())
	assert.Equal(t, []string{"a", "b"}, g.Ancestors("c"))
	assert.Equal(t, []string{"b", "c"}, g.Descendants("a"))
}

func TestNew_Rejects(t *testing.T) {
	cases := []struct {
		name  string
		tasks []Task
		want  error
	}{
		{
			name:  "duplicate",
			tasks: []Task{{Name: "a", Run: noop}, {Name: "a", Run: noop}},
			want:  ErrDuplicateTask,
		},
		{
			name:  "unknown dependency",
			tasks: []Task{{Name: "a", Deps: []string{"ghost"}, Run: noop}},
			want:  ErrUnknownDependency,
		},
		{
			name: "cycle",
			tasks: []Task{
				{Name: "a", Deps: []string{"c"}, Run: noop},
				{Name: "b", Deps: []string{"a"}, Run: noop},
				{Name: "c", Deps: []string{"b"}, Run: noop},
			},
			want: ErrCycle,
		},
		{
			name:  "self loop",
			tasks: []Task{{Name: "a", Deps: []string{"a"}, Run: noop}},
			want:  ErrCycle,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.tasks...)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestNew_RequiresNameAndBody(t *testing.T) {
	_, err := New(Task{Run: noop})
	assert.Error(t, err)
	_, err = New(Task{Name: "a"})
	assert.Error(t, err)
}

func TestCountsSkipped(t *testing.T) {
	c := Counts{Attempted: 5, Inserted: 3}
	assert.EqualValues(t, 2, c.Skipped())
	c.Add(Counts{Attempted: 1, Inserted: 1, Gaps: 2})
	assert.Equal(t, Counts{Attempted: 6, Inserted: 4, Gaps: 2}, c)
}
