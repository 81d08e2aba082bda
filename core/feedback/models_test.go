package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsOpen(t *testing.T) {
	now := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    Target
		want bool
	}{
		{name: "no window is always open", t: Target{}, want: true},
		{name: "inside window", t: Target{OpensAt: now.AddDate(0, 0, -1), ClosesAt: now.AddDate(0, 0, 1)}, want: true},
		{name: "opens exactly now", t: Target{OpensAt: now, ClosesAt: now.AddDate(0, 0, 14)}, want: true},
		{name: "not yet open", t: Target{OpensAt: now.AddDate(0, 0, 1), ClosesAt: now.AddDate(0, 0, 15)}, want: false},
		{name: "already closed", t: Target{OpensAt: now.AddDate(0, 0, -15), ClosesAt: now.AddDate(0, 0, -1)}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOpen(tt.t, now))
		})
	}
}

func TestIsEnded(t *testing.T) {
	now := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

	assert.True(t, IsEnded(Target{}, now))
	assert.True(t, IsEnded(Target{ClosesAt: now.AddDate(0, 0, -1)}, now))
	assert.False(t, IsEnded(Target{ClosesAt: now.AddDate(0, 0, 1)}, now))
}

func TestQuestionIDUnion(t *testing.T) {
	tests := []struct {
		name  string
		lists [][]int
		want  []int
	}{
		{name: "empty", lists: nil, want: []int{}},
		{name: "single list", lists: [][]int{{1, 2, 3}}, want: []int{1, 2, 3}},
		{name: "dedup keeps first occurrence", lists: [][]int{{1, 2}, {2, 3, 1}, {4}}, want: []int{1, 2, 3, 4}},
		{name: "dedup within a list", lists: [][]int{{1, 1, 2}}, want: []int{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuestionIDUnion(tt.lists...))
		})
	}
}

func TestAccessPriority(t *testing.T) {
	assert.Greater(t, AccessPriority(AccessResponsibleTeacher), AccessPriority(AccessTeacher))
	assert.Greater(t, AccessPriority(AccessTeacher), AccessPriority(AccessStudent))
	assert.Greater(t, AccessPriority(AccessStudent), AccessPriority(AccessNone))
	assert.Equal(t, 0, AccessPriority("whatever"))
}
