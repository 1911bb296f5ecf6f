package store

import (
	"testing"
	"time"
)

func TestMemScores_PutGetReset(t *testing.T) {
	t.Parallel()

	scores := NewMemStore().Scores()
	ctx := t.Context()

	if _, ok, err := scores.Get(ctx, "item-1", ModeTyped); err != nil || ok {
		t.Fatalf("Get on empty store: ok=%v err=%v, want false nil", ok, err)
	}

	now := time.Now()
	score := 2
	if err := scores.Put(ctx, "item-1", ModeTyped, ScoreUpdate{
		AddCorrect:  1,
		SetScore:    &score,
		PracticedAt: now,
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec, ok, err := scores.Get(ctx, "item-1", ModeTyped)
	if err != nil || !ok {
		t.Fatalf("Get after Put: ok=%v err=%v", ok, err)
	}
	if rec.ItemID != "item-1" || rec.Mode != ModeTyped {
		t.Errorf("record identity = (%q, %q), want (item-1, typed)", rec.ItemID, rec.Mode)
	}
	if rec.CorrectCount != 1 || rec.WrongCount != 0 || rec.MemoryScore != 2 {
		t.Errorf("record counts = %+v, want correct=1 wrong=0 score=2", rec)
	}
	if !rec.LastPracticedAt.Equal(now) {
		t.Errorf("LastPracticedAt = %v, want %v", rec.LastPracticedAt, now)
	}

	// Deltas accumulate, nil SetScore leaves the score untouched.
	if err := scores.Put(ctx, "item-1", ModeTyped, ScoreUpdate{AddWrong: 1}); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	rec, _, _ = scores.Get(ctx, "item-1", ModeTyped)
	if rec.CorrectCount != 1 || rec.WrongCount != 1 || rec.MemoryScore != 2 {
		t.Errorf("after delta: %+v, want correct=1 wrong=1 score=2", rec)
	}

	if err := scores.Reset(ctx, "item-1", ModeTyped); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, ok, _ := scores.Get(ctx, "item-1", ModeTyped); ok {
		t.Error("Get after Reset: ok=true, want false")
	}

	// Resetting an absent record is a no-op.
	if err := scores.Reset(ctx, "ghost", ModeSpoken); err != nil {
		t.Errorf("Reset absent: %v", err)
	}
}

func TestMemScores_ModesIndependent(t *testing.T) {
	t.Parallel()

	scores := NewMemStore().Scores()
	ctx := t.Context()

	typed := 3
	if err := scores.Put(ctx, "item-1", ModeTyped, ScoreUpdate{SetScore: &typed}); err != nil {
		t.Fatalf("Put typed: %v", err)
	}

	if _, ok, _ := scores.Get(ctx, "item-1", ModeSpoken); ok {
		t.Error("spoken record exists after typed Put")
	}
	rec, ok, _ := scores.Get(ctx, "item-1", ModeTyped)
	if !ok || rec.MemoryScore != 3 {
		t.Errorf("typed record = %+v ok=%v, want score 3", rec, ok)
	}
}

func TestMemResume_SingleSlot(t *testing.T) {
	t.Parallel()

	resume := NewMemStore().Resume()
	ctx := t.Context()

	if _, ok, err := resume.Load(ctx); err != nil || ok {
		t.Fatalf("Load on empty slot: ok=%v err=%v", ok, err)
	}

	first := ResumePointer{Mode: ModeTyped, SetID: "animals", SavedAt: time.Now()}
	if err := resume.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second := ResumePointer{Mode: ModeSpoken, SetID: "food", SavedAt: time.Now()}
	if err := resume.Save(ctx, second); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, ok, err := resume.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got.SetID != "food" || got.Mode != ModeSpoken {
		t.Errorf("slot = %+v, want the later pointer", got)
	}

	if err := resume.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := resume.Load(ctx); ok {
		t.Error("Load after Clear: ok=true, want false")
	}
}

func TestMemSnapshots_KeyedBySetAndMode(t *testing.T) {
	t.Parallel()

	snaps := NewMemStore().Snapshots()
	ctx := t.Context()

	if _, ok, err := snaps.Load(ctx, "animals", ModeTyped); err != nil || ok {
		t.Fatalf("Load on empty store: ok=%v err=%v", ok, err)
	}

	if err := snaps.Save(ctx, "animals", ModeTyped, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := snaps.Save(ctx, "animals", ModeSpoken, []byte(`{"b":2}`)); err != nil {
		t.Fatalf("Save spoken: %v", err)
	}

	data, ok, err := snaps.Load(ctx, "animals", ModeTyped)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("typed snapshot = %s, want {\"a\":1}", data)
	}

	// The stored payload is insulated from caller mutation.
	data[0] = 'X'
	again, _, _ := snaps.Load(ctx, "animals", ModeTyped)
	if string(again) != `{"a":1}` {
		t.Errorf("snapshot mutated through returned slice: %s", again)
	}

	if err := snaps.Clear(ctx, "animals", ModeTyped); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := snaps.Load(ctx, "animals", ModeTyped); ok {
		t.Error("typed snapshot survived Clear")
	}
	if _, ok, _ := snaps.Load(ctx, "animals", ModeSpoken); !ok {
		t.Error("spoken snapshot cleared by typed Clear")
	}
}
