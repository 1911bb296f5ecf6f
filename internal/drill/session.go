package drill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/lexidrill/lexidrill/internal/content"
	"github.com/lexidrill/lexidrill/internal/mastery"
	"github.com/lexidrill/lexidrill/internal/match"
	"github.com/lexidrill/lexidrill/internal/observe"
	"github.com/lexidrill/lexidrill/internal/store"
	"github.com/lexidrill/lexidrill/internal/verify"
)

// DefaultSpokenDelay is the pause between presenting an item and auto-
// starting spoken capture, so the capture does not pick up the tail of the
// previous prompt's playback.
const DefaultSpokenDelay = 350 * time.Millisecond

// ErrInvalidState is returned when an operation is called in a session state
// that does not permit it.
var ErrInvalidState = errors.New("drill: operation not valid in current session state")

// State is the session lifecycle state.
type State int

const (
	// StateLoading is the initial state before Start.
	StateLoading State = iota

	// StateActive means a queue is loaded and the next item can be presented.
	StateActive

	// StateAwaiting means the current item has been presented and the
	// session is waiting for an answer. Unscored spoken attempts stay here.
	StateAwaiting

	// StateSuspended means the session was interrupted and its snapshot
	// written; the session object is finished.
	StateSuspended

	// StateComplete means the queue ran empty and final stats are available.
	StateComplete
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateAwaiting:
		return "awaiting"
	case StateSuspended:
		return "suspended"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Verifier decides whether a spoken utterance matches a target word. It is
// satisfied by [verify.Verifier].
type Verifier interface {
	Verify(ctx context.Context, target string, distractors []string) (verify.Outcome, error)
}

// Config wires a [Session]'s collaborators. Content, Scores, Resume, and
// Snapshots are required; everything else has a sensible default.
type Config struct {
	Content   content.Store
	Scores    store.ScoreStore
	Resume    store.ResumeStore
	Snapshots store.SnapshotStore

	// Verifier handles spoken answers. Nil disables spoken verification;
	// SubmitSpoken then reports [verify.ErrNoAudio] so callers fall back to
	// typed input.
	Verifier Verifier

	// Classifier grades typed answers. Defaults to [match.New].
	Classifier *match.Classifier

	// Rand drives the session shuffle. Defaults to a time-seeded source.
	Rand *rand.Rand

	// SpokenDelay is the pause before spoken capture auto-starts.
	// Zero selects [DefaultSpokenDelay]; negative disables the delay.
	SpokenDelay time.Duration

	// Metrics records instrumentation; nil records nothing.
	Metrics *observe.Metrics

	// Clock supplies the current time. Defaults to [time.Now].
	Clock func() time.Time

	// Logger defaults to [slog.Default].
	Logger *slog.Logger
}

// Answer is the outcome of submitting one answer.
type Answer struct {
	ItemID string
	Word   string

	// Scored is false when the answer produced no verdict (spoken attempts
	// that heard nothing usable or a different word); the item stays current
	// and nothing was written to the score store.
	Scored bool

	// Correct is the scored result. Only meaningful when Scored.
	Correct bool

	// Almost marks a near-miss: scored as incorrect but surfaced distinctly
	// so the learner reviews spelling or pronunciation.
	Almost bool

	// Heard is what the verifier understood, for spoken answers.
	Heard string

	// Score is the item's memory score after scoring.
	Score int

	// MasteredNow fires when this answer crossed the mastery threshold.
	MasteredNow bool

	// SessionDone is true when this answer emptied the queue.
	SessionDone bool
}

// Stats summarises a session, partial or final.
type Stats struct {
	SetID           string
	Mode            store.Mode
	State           State
	Tries           int
	Wrongs          int
	NewlyMastered   int
	MasteredAtStart int
	TotalItems      int
	Remaining       int
	Elapsed         time.Duration

	// WrongItems lists the IDs of items answered wrong at least once,
	// sorted.
	WrongItems []string
}

// Session orchestrates one drill run over a single (set, mode) pair: it owns
// the queue, feeds answers into the mastery model, writes through the score
// store, and persists/restores snapshots.
//
// All methods are safe for concurrent use, but the session logic is
// single-flight: the mutex serialises operations so no two advances are ever
// in flight for the same queue.
type Session struct {
	mu  sync.Mutex
	cfg Config
	log *slog.Logger

	state State
	setID string
	mode  store.Mode
	set   content.Set
	queue *Queue

	tries           int
	wrongs          map[string]int
	masteredAtStart int
	totalItems      int
	newlyMastered   int
	startedAt       time.Time
}

// NewSession validates cfg and returns a session in [StateLoading].
func NewSession(cfg Config) (*Session, error) {
	if cfg.Content == nil {
		return nil, fmt.Errorf("drill: config needs a content store")
	}
	if cfg.Scores == nil {
		return nil, fmt.Errorf("drill: config needs a score store")
	}
	if cfg.Resume == nil {
		return nil, fmt.Errorf("drill: config needs a resume store")
	}
	if cfg.Snapshots == nil {
		return nil, fmt.Errorf("drill: config needs a snapshot store")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = match.New()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.SpokenDelay == 0 {
		cfg.SpokenDelay = DefaultSpokenDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		cfg:    cfg,
		log:    log,
		state:  StateLoading,
		wrongs: make(map[string]int),
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start loads the set, restores a snapshot when a valid one exists for this
// exact (set, mode), and otherwise builds a freshly shuffled queue of
// not-yet-mastered items. A queue that starts empty (everything already
// mastered) completes immediately; that is normal, not an error.
func (s *Session) Start(ctx context.Context, setID string, mode store.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoading {
		return fmt.Errorf("%w: Start in %s", ErrInvalidState, s.state)
	}
	if !mode.IsValid() {
		return fmt.Errorf("drill: invalid mode %q", mode)
	}

	set, err := s.cfg.Content.GetSet(ctx, setID)
	if err != nil {
		return fmt.Errorf("drill: load set: %w", err)
	}
	s.set = set
	s.setID = setID
	s.mode = mode
	s.totalItems = len(set.Items)

	mastered, err := s.countMastered(ctx)
	if err != nil {
		return err
	}
	s.masteredAtStart = mastered

	source, err := s.buildQueue(ctx)
	if err != nil {
		return err
	}
	s.startedAt = s.cfg.Clock()

	s.cfg.Metrics.RecordSessionStarted(ctx, source)
	s.cfg.Metrics.AddActiveSessions(ctx, 1)
	s.log.Info("session started",
		"set", setID, "mode", mode, "source", source,
		"queued", s.queue.Len(), "mastered_at_start", s.masteredAtStart,
	)

	if s.queue.Complete() {
		s.finalize(ctx)
		return nil
	}
	s.state = StateActive
	return nil
}

// buildQueue restores from a snapshot or shuffles a fresh queue, returning
// the queue source name for instrumentation.
func (s *Session) buildQueue(ctx context.Context) (string, error) {
	data, ok, err := s.cfg.Snapshots.Load(ctx, s.setID, s.mode)
	if err != nil {
		return "", fmt.Errorf("drill: load snapshot: %w", err)
	}
	if ok {
		snap, err := DecodeSnapshot(data)
		if err == nil {
			s.restoreFromSnapshot(snap)
			// The resume pointer is consumed by restoring.
			if err := s.cfg.Resume.Clear(ctx); err != nil {
				s.log.Warn("failed to clear resume pointer", "error", err)
			}
			return "snapshot", nil
		}

		// Never partially trust a snapshot: discard it wholesale.
		s.log.Warn("discarding unreadable snapshot", "set", s.setID, "mode", s.mode, "error", err)
		if err := s.cfg.Snapshots.Clear(ctx, s.setID, s.mode); err != nil {
			s.log.Warn("failed to clear snapshot", "error", err)
		}
		if err := s.freshQueue(ctx); err != nil {
			return "", err
		}
		return "discarded", nil
	}

	if err := s.freshQueue(ctx); err != nil {
		return "", err
	}
	return "fresh", nil
}

func (s *Session) restoreFromSnapshot(snap Snapshot) {
	s.queue = RestoreQueue(rehydrate(snap, s.set))
	s.tries = snap.Tries
	s.wrongs = snap.Wrongs
	if s.wrongs == nil {
		s.wrongs = make(map[string]int)
	}
	s.masteredAtStart = snap.MasteredAtStart
	s.newlyMastered = snap.NewlyMastered
	if snap.TotalItems > 0 {
		s.totalItems = snap.TotalItems
	}
}

func (s *Session) freshQueue(ctx context.Context) error {
	items := make([]Item, 0, len(s.set.Items))
	for _, it := range s.set.Items {
		rec, ok, err := s.cfg.Scores.Get(ctx, it.ID, s.mode)
		if err != nil {
			return fmt.Errorf("drill: read score for %q: %w", it.ID, err)
		}
		if ok && mastery.Mastered(rec.MemoryScore) {
			continue
		}
		items = append(items, Item{ID: it.ID, Word: it.Word, Status: StatusPending})
	}
	s.queue = NewQueue(items, s.cfg.Rand)
	return nil
}

func (s *Session) countMastered(ctx context.Context) (int, error) {
	n := 0
	for _, it := range s.set.Items {
		rec, ok, err := s.cfg.Scores.Get(ctx, it.ID, s.mode)
		if err != nil {
			return 0, fmt.Errorf("drill: read score for %q: %w", it.ID, err)
		}
		if ok && mastery.Mastered(rec.MemoryScore) {
			n++
		}
	}
	return n, nil
}

// Current returns the item at the head of the queue and marks it presented.
func (s *Session) Current(ctx context.Context) (content.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAnswerable(); err != nil {
		return content.Item{}, err
	}
	head, _ := s.queue.Head()
	item, err := s.cfg.Content.GetItem(ctx, head.ID)
	if err != nil {
		return content.Item{}, fmt.Errorf("drill: current item: %w", err)
	}
	s.state = StateAwaiting
	return item, nil
}

// Choices returns count answer options for the current item: the target word
// plus distractors drawn from the rest of the set, shuffled. Fewer options
// are returned when the set is too small.
func (s *Session) Choices(count int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAnswerable(); err != nil {
		return nil, err
	}
	head, _ := s.queue.Head()

	others := make([]string, 0, len(s.set.Items))
	for _, it := range s.set.Items {
		if it.ID != head.ID {
			others = append(others, it.Word)
		}
	}
	s.cfg.Rand.Shuffle(len(others), func(i, j int) {
		others[i], others[j] = others[j], others[i]
	})
	if len(others) > count-1 {
		others = others[:count-1]
	}
	choices := append(others, head.Word)
	s.cfg.Rand.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})
	return choices, nil
}

// SubmitTyped grades a typed answer against the current item. Near-misses
// are scored as incorrect but flagged as Almost. Typed answers are always
// scored.
func (s *Session) SubmitTyped(ctx context.Context, answer string) (Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAnswerable(); err != nil {
		return Answer{}, err
	}
	head, _ := s.queue.Head()

	var correct, almost bool
	switch s.cfg.Classifier.Classify(answer, head.Word) {
	case match.ClassExact:
		correct = true
	case match.ClassNear:
		almost = true
	}
	return s.score(ctx, head, correct, almost, "")
}

// SubmitChoice grades a multiple-choice pick against the current item.
// Choice answers are always scored; there is no near-miss for a click.
func (s *Session) SubmitChoice(ctx context.Context, choice string) (Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAnswerable(); err != nil {
		return Answer{}, err
	}
	head, _ := s.queue.Head()

	correct := match.Normalize(choice) == match.Normalize(head.Word)
	return s.score(ctx, head, correct, false, "")
}

// SubmitSpoken runs one spoken verification attempt against the current
// item. Correct and near-miss verdicts are scored; a mismatch or no usable
// speech leaves the item unscored in [StateAwaiting], inviting another
// attempt. Capability failures ([verify.ErrNoAudio], [verify.ErrNotReady])
// are returned unwrapped so callers can fall back to typed input.
func (s *Session) SubmitSpoken(ctx context.Context) (Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAnswerable(); err != nil {
		return Answer{}, err
	}
	if s.cfg.Verifier == nil {
		return Answer{}, verify.ErrNoAudio
	}
	head, _ := s.queue.Head()

	// Give the previous prompt's audio tail time to fade before the device
	// opens.
	if s.cfg.SpokenDelay > 0 {
		timer := time.NewTimer(s.cfg.SpokenDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Answer{}, ctx.Err()
		}
	}

	distractors := make([]string, 0, len(s.set.Items))
	for _, it := range s.set.Items {
		if it.ID != head.ID {
			distractors = append(distractors, it.Word)
		}
	}

	start := s.cfg.Clock()
	out, err := s.cfg.Verifier.Verify(ctx, head.Word, distractors)
	s.cfg.Metrics.RecordVerifyDuration(ctx, s.cfg.Clock().Sub(start))
	if err != nil {
		return Answer{}, err
	}
	s.cfg.Metrics.RecordVerdict(ctx, out.Verdict.String())

	switch out.Verdict {
	case verify.VerdictCorrect:
		return s.score(ctx, head, true, false, out.Heard)
	case verify.VerdictAlmost:
		return s.score(ctx, head, false, true, out.Heard)
	case verify.VerdictMismatch:
		s.state = StateAwaiting
		return Answer{ItemID: head.ID, Word: head.Word, Heard: out.Heard}, nil
	default:
		s.state = StateAwaiting
		return Answer{ItemID: head.ID, Word: head.Word}, nil
	}
}

// score applies one graded answer: mastery update, score store write, queue
// advance, and completion handling. Callers hold the mutex.
func (s *Session) score(ctx context.Context, head Item, correct, almost bool, heard string) (Answer, error) {
	rec, found, err := s.cfg.Scores.Get(ctx, head.ID, s.mode)
	if err != nil {
		return Answer{}, fmt.Errorf("drill: read score: %w", err)
	}

	missedThisSession := s.wrongs[head.ID] > 0 || head.Status == StatusWrong
	missedEver := missedThisSession || (found && rec.WrongCount > 0)

	next, masteredNow := mastery.NextScore(rec.MemoryScore, missedThisSession, missedEver, correct)

	upd := store.ScoreUpdate{SetScore: &next, PracticedAt: s.cfg.Clock()}
	if correct {
		upd.AddCorrect = 1
	} else {
		upd.AddWrong = 1
	}
	if err := s.cfg.Scores.Put(ctx, head.ID, s.mode, upd); err != nil {
		// The answer was not recorded; leave the item current so it can be
		// retried rather than silently losing the attempt.
		return Answer{}, fmt.Errorf("drill: write score: %w", err)
	}

	s.tries++
	if !correct {
		s.wrongs[head.ID]++
	}
	if masteredNow {
		s.newlyMastered++
		s.cfg.Metrics.RecordMastered(ctx, 1)
	}
	s.cfg.Metrics.RecordAnswer(ctx, string(s.mode), correct)

	s.queue.Advance(correct)

	ans := Answer{
		ItemID:      head.ID,
		Word:        head.Word,
		Scored:      true,
		Correct:     correct,
		Almost:      almost,
		Heard:       heard,
		Score:       next,
		MasteredNow: masteredNow,
	}
	if s.queue.Complete() {
		s.finalize(ctx)
		ans.SessionDone = true
	} else {
		s.state = StateActive
	}
	return ans, nil
}

// finalize handles normal completion: persisted interruption state is
// cleared and the session enters [StateComplete]. Callers hold the mutex.
func (s *Session) finalize(ctx context.Context) {
	if err := s.cfg.Snapshots.Clear(ctx, s.setID, s.mode); err != nil {
		s.log.Warn("failed to clear snapshot", "error", err)
	}
	if err := s.cfg.Resume.Clear(ctx); err != nil {
		s.log.Warn("failed to clear resume pointer", "error", err)
	}
	s.state = StateComplete
	s.cfg.Metrics.RecordSessionCompleted(ctx, string(s.mode))
	s.cfg.Metrics.AddActiveSessions(ctx, -1)
	s.log.Info("session complete",
		"set", s.setID, "mode", s.mode,
		"tries", s.tries, "newly_mastered", s.newlyMastered,
	)
}

// Suspend writes a snapshot of the in-flight queue (current head included)
// and a resume pointer, then finishes the session in [StateSuspended].
// Mastery data already written stays untouched. Returns partial statistics
// as if the session ended now.
func (s *Session) Suspend(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive && s.state != StateAwaiting {
		return Stats{}, fmt.Errorf("%w: Suspend in %s", ErrInvalidState, s.state)
	}

	now := s.cfg.Clock()
	snap := Snapshot{
		SetID:           s.setID,
		Mode:            s.mode,
		Queue:           make([]SnapshotItem, 0, s.queue.Len()),
		Tries:           s.tries,
		Wrongs:          make(map[string]int, len(s.wrongs)),
		MasteredAtStart: s.masteredAtStart,
		TotalItems:      s.totalItems,
		NewlyMastered:   s.newlyMastered,
		SavedAt:         now,
	}
	for _, it := range s.queue.Items() {
		snap.Queue = append(snap.Queue, SnapshotItem{ID: it.ID, Status: it.Status})
	}
	for id, n := range s.wrongs {
		snap.Wrongs[id] = n
	}

	data, err := snap.Encode()
	if err != nil {
		return Stats{}, err
	}
	if err := s.cfg.Snapshots.Save(ctx, s.setID, s.mode, data); err != nil {
		return Stats{}, fmt.Errorf("drill: save snapshot: %w", err)
	}
	ptr := store.ResumePointer{Mode: s.mode, SetID: s.setID, SavedAt: now}
	if err := s.cfg.Resume.Save(ctx, ptr); err != nil {
		return Stats{}, fmt.Errorf("drill: save resume pointer: %w", err)
	}

	s.state = StateSuspended
	s.cfg.Metrics.AddActiveSessions(ctx, -1)
	s.log.Info("session suspended", "set", s.setID, "mode", s.mode, "remaining", s.queue.Len())
	return s.statsLocked(), nil
}

// Stats returns current statistics; partial while the session runs, final
// once complete or suspended.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Session) statsLocked() Stats {
	wrongItems := make([]string, 0, len(s.wrongs))
	totalWrong := 0
	for id, n := range s.wrongs {
		wrongItems = append(wrongItems, id)
		totalWrong += n
	}
	slices.Sort(wrongItems)

	remaining := 0
	if s.queue != nil {
		remaining = s.queue.Len()
	}
	var elapsed time.Duration
	if !s.startedAt.IsZero() {
		elapsed = s.cfg.Clock().Sub(s.startedAt)
	}
	return Stats{
		SetID:           s.setID,
		Mode:            s.mode,
		State:           s.state,
		Tries:           s.tries,
		Wrongs:          totalWrong,
		NewlyMastered:   s.newlyMastered,
		MasteredAtStart: s.masteredAtStart,
		TotalItems:      s.totalItems,
		Remaining:       remaining,
		Elapsed:         elapsed,
		WrongItems:      wrongItems,
	}
}

func (s *Session) requireAnswerable() error {
	if s.state != StateActive && s.state != StateAwaiting {
		return fmt.Errorf("%w: need an active session, got %s", ErrInvalidState, s.state)
	}
	return nil
}
