package scheduler

import (
	"testing"
	"time"

	"famcal/internal/storage"
)

func baseTask() storage.Task {
	return storage.Task{ID: 1, OwnerID: 42, Title: "dentist", Date: "2026-03-02"}
}

func kinds(trs []Trigger) map[TriggerKind]bool {
	out := make(map[TriggerKind]bool, len(trs))
	for _, tr := range trs {
		out[tr.Kind] = true
	}
	return out
}

func TestEvaluateDayBefore(t *testing.T) {
	t.Parallel()

	one := 1
	tests := []struct {
		name string
		now  time.Time
		task func() storage.Task
		want bool
	}{
		{
			name: "morning before task day",
			now:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			task: func() storage.Task { tk := baseTask(); tk.NotifyBeforeDays = &one; return tk },
			want: true,
		},
		{
			name: "afternoon before task day",
			now:  time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC),
			task: func() storage.Task { tk := baseTask(); tk.NotifyBeforeDays = &one; return tk },
			want: false,
		},
		{
			name: "last morning hour",
			now:  time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC),
			task: func() storage.Task { tk := baseTask(); tk.NotifyBeforeDays = &one; return tk },
			want: true,
		},
		{
			name: "noon exactly",
			now:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			task: func() storage.Task { tk := baseTask(); tk.NotifyBeforeDays = &one; return tk },
			want: false,
		},
		{
			name: "two days out",
			now:  time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC),
			task: func() storage.Task { tk := baseTask(); tk.NotifyBeforeDays = &one; return tk },
			want: false,
		},
		{
			name: "task day itself",
			now:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
			task: func() storage.Task { tk := baseTask(); tk.NotifyBeforeDays = &one; return tk },
			want: false,
		},
		{
			name: "setting absent",
			now:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			task: baseTask,
			want: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Evaluate(tt.now, tt.task())
			if err != nil {
				t.Fatalf("Evaluate error: %v", err)
			}
			if kinds(got)[TriggerDayBefore] != tt.want {
				t.Fatalf("day_before fired = %v, want %v (triggers %+v)", !tt.want, tt.want, got)
			}
		})
	}
}

func TestEvaluateHourBefore(t *testing.T) {
	t.Parallel()

	one := 1
	withStart := func(clock string) storage.Task {
		tk := baseTask()
		tk.NotifyBeforeHours = &one
		tk.StartTime = &clock
		return tk
	}

	taskDay := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		task storage.Task
		want bool
	}{
		{name: "exactly one hour out", now: taskDay.Add(13 * time.Hour), task: withStart("14:00"), want: true},
		{name: "half hour out", now: taskDay.Add(13*time.Hour + 30*time.Minute), task: withStart("14:00"), want: true},
		{name: "ninety minutes out", now: taskDay.Add(12*time.Hour + 30*time.Minute), task: withStart("14:00"), want: true},
		{name: "too close", now: taskDay.Add(13*time.Hour + 45*time.Minute), task: withStart("14:00"), want: false},
		{name: "too far", now: taskDay.Add(12 * time.Hour), task: withStart("14:00"), want: false},
		{name: "already started", now: taskDay.Add(14*time.Hour + 5*time.Minute), task: withStart("14:00"), want: false},
		{name: "no start time", now: taskDay.Add(13 * time.Hour), task: func() storage.Task { tk := baseTask(); tk.NotifyBeforeHours = &one; return tk }(), want: false},
		{name: "setting absent", now: taskDay.Add(13 * time.Hour), task: func() storage.Task { s := "14:00"; tk := baseTask(); tk.StartTime = &s; return tk }(), want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Evaluate(tt.now, tt.task)
			if err != nil {
				t.Fatalf("Evaluate error: %v", err)
			}
			if kinds(got)[TriggerHourBefore] != tt.want {
				t.Fatalf("hour_before fired = %v, want %v (triggers %+v)", !tt.want, tt.want, got)
			}
		})
	}
}

func TestEvaluateBothRulesFire(t *testing.T) {
	t.Parallel()

	one := 1
	clock := "09:30"
	tk := storage.Task{
		ID: 1, OwnerID: 42, Title: "early meeting",
		Date:              "2026-03-02",
		StartTime:         &clock,
		NotifyBeforeDays:  &one,
		NotifyBeforeHours: &one,
	}

	// 08:30 on the task's eve never overlaps the hour rule; use a task the
	// next morning: now is 08:30 on March 1, task is March 2 09:30 -> only
	// day_before. Shift now to March 2 08:30 -> only hour_before.
	eve := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	got, err := Evaluate(eve, tk)
	if err != nil {
		t.Fatal(err)
	}
	if !kinds(got)[TriggerDayBefore] || kinds(got)[TriggerHourBefore] {
		t.Fatalf("eve triggers = %+v", got)
	}

	morning := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	got, err = Evaluate(morning, tk)
	if err != nil {
		t.Fatal(err)
	}
	if kinds(got)[TriggerDayBefore] || !kinds(got)[TriggerHourBefore] {
		t.Fatalf("morning triggers = %+v", got)
	}
}

func TestEvaluateTriggerFields(t *testing.T) {
	t.Parallel()

	one := 1
	clock := "10:00"
	tk := storage.Task{
		ID: 1, OwnerID: 42, Title: "x",
		Date:              "2026-03-02",
		StartTime:         &clock,
		NotifyBeforeDays:  &one,
		NotifyBeforeHours: &one,
	}
	got, err := Evaluate(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), tk)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Kind != TriggerDayBefore {
		t.Fatalf("triggers = %+v, want exactly day_before", got)
	}
	if got[0].Occurrence != "2026-03-02" {
		t.Fatalf("occurrence = %q, want task date", got[0].Occurrence)
	}
}

func TestEvaluateMalformedTask(t *testing.T) {
	t.Parallel()

	one := 1
	bad := baseTask()
	bad.Date = "03/02/2026"
	bad.NotifyBeforeDays = &one
	if _, err := Evaluate(time.Now(), bad); err == nil {
		t.Fatal("expected error for malformed date")
	}

	badClock := baseTask()
	clock := "9am"
	badClock.NotifyBeforeHours = &one
	badClock.StartTime = &clock
	if _, err := Evaluate(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), badClock); err == nil {
		t.Fatal("expected error for malformed start time")
	}
}

func TestEvaluateSecondsClockAccepted(t *testing.T) {
	t.Parallel()

	one := 1
	clock := "14:00:00"
	tk := baseTask()
	tk.NotifyBeforeHours = &one
	tk.StartTime = &clock

	got, err := Evaluate(time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC), tk)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if !kinds(got)[TriggerHourBefore] {
		t.Fatalf("triggers = %+v, want hour_before", got)
	}
}
