package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-attempt-engine/internal/config"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
)

var (
	// ErrNotFound is returned when the attempt keys are gone (never created or expired).
	ErrNotFound = errors.New("not found")
	// ErrStatusConflict is returned when a guarded write sees an unexpected status.
	ErrStatusConflict = errors.New("status conflict")
	// ErrCursorBackward is returned when a forward-only cursor would move back.
	ErrCursorBackward = errors.New("cursor cannot move backwards")
)

// StatusError carries the status observed by a rejected guarded write. Stale
// is set when the status matched but another transition landed after the
// caller loaded the attempt.
type StatusError struct {
	Status model.AttemptStatus
	Stale  bool
}

func (e *StatusError) Error() string {
	if e.Stale {
		return fmt.Sprintf("status conflict: attempt %s changed concurrently", e.Status)
	}
	return fmt.Sprintf("status conflict: attempt is %s", e.Status)
}

func (e *StatusError) Unwrap() error { return ErrStatusConflict }

// AnswerOutcome reports what a sequence-guarded answer write did.
type AnswerOutcome int

const (
	AnswerApplied AnswerOutcome = iota + 1
	AnswerStale
)

// Every script reads the status key first and copies its remaining TTL onto
// any key it writes, so per-attempt keys always expire together.

// answerScript applies an answer only while IN_PROGRESS and only when the
// sequence number is strictly higher than the stored one.
//
// KEYS: status, seq, answers. ARGV: question id, seq, encoded answer.
var answerScript = redis.NewScript(`
local status = redis.call('GET', KEYS[1])
if not status then return {-2, ''} end
if status ~= 'IN_PROGRESS' then return {-1, status} end
local current = tonumber(redis.call('HGET', KEYS[2], ARGV[1]) or '0')
if tonumber(ARGV[2]) <= current then return {0, status} end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[3])
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[2], ttl)
	redis.call('PEXPIRE', KEYS[3], ttl)
end
return {1, status}
`)

// statusScript moves the status to ARGV[1] if it is one of ARGV[2..] and
// bumps the revision.
//
// KEYS: status, rev.
var statusScript = redis.NewScript(`
local status = redis.call('GET', KEYS[1])
if not status then return {-2, ''} end
for i = 2, #ARGV do
	if status == ARGV[i] then
		local ttl = redis.call('PTTL', KEYS[1])
		redis.call('INCR', KEYS[2])
		if ttl > 0 then
			redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
			redis.call('PEXPIRE', KEYS[2], ttl)
		else
			redis.call('SET', KEYS[1], ARGV[1])
		end
		return {1, status}
	end
end
return {0, status}
`)

// transitionScript moves the status to ARGV[1] and replaces the metadata
// blob, but only if the status is one of ARGV[5..] and the revision still
// equals ARGV[2]. A revision mismatch returns -3. When a fourth key is given
// it is set to ARGV[4] in the same step.
//
// KEYS: status, meta, rev, [extra]. ARGV: to, expected rev, meta, extra, from...
var transitionScript = redis.NewScript(`
local status = redis.call('GET', KEYS[1])
if not status then return {-2, ''} end
local allowed = false
for i = 5, #ARGV do
	if status == ARGV[i] then allowed = true end
end
if not allowed then return {0, status} end
if tonumber(redis.call('GET', KEYS[3]) or '0') ~= tonumber(ARGV[2]) then
	return {-3, status}
end
local ttl = redis.call('PTTL', KEYS[1])
redis.call('INCR', KEYS[3])
if ttl > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
	redis.call('SET', KEYS[2], ARGV[3], 'PX', ttl)
	redis.call('PEXPIRE', KEYS[3], ttl)
	if #KEYS == 4 then redis.call('SET', KEYS[4], ARGV[4], 'PX', ttl) end
else
	redis.call('SET', KEYS[1], ARGV[1])
	redis.call('SET', KEYS[2], ARGV[3])
	if #KEYS == 4 then redis.call('SET', KEYS[4], ARGV[4]) end
end
return {1, status}
`)

// cursorScript stores the question index while IN_PROGRESS or PAUSED. With
// ARGV[2] = '0' the cursor may not move backwards (returns 0).
//
// KEYS: status, cursor. ARGV: index, allow back.
var cursorScript = redis.NewScript(`
local status = redis.call('GET', KEYS[1])
if not status then return {-2, ''} end
if status ~= 'IN_PROGRESS' and status ~= 'PAUSED' then return {-1, status} end
local current = tonumber(redis.call('GET', KEYS[2]) or '0')
if ARGV[2] == '0' and tonumber(ARGV[1]) < current then return {0, status} end
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
	redis.call('SET', KEYS[2], ARGV[1], 'PX', ttl)
else
	redis.call('SET', KEYS[2], ARGV[1])
end
return {1, status}
`)

// flagScript toggles membership of ARGV[1] while IN_PROGRESS or PAUSED.
//
// KEYS: status, flags.
var flagScript = redis.NewScript(`
local status = redis.call('GET', KEYS[1])
if not status then return {-2, ''} end
if status ~= 'IN_PROGRESS' and status ~= 'PAUSED' then return {-1, status} end
local flagged = 1
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
	redis.call('SREM', KEYS[2], ARGV[1])
	flagged = 0
else
	redis.call('SADD', KEYS[2], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then redis.call('PEXPIRE', KEYS[2], ttl) end
return {flagged, status}
`)

// telemetryScript appends ARGV[1] while IN_PROGRESS or PAUSED.
//
// KEYS: status, telemetry.
var telemetryScript = redis.NewScript(`
local status = redis.call('GET', KEYS[1])
if not status then return {-2, ''} end
if status ~= 'IN_PROGRESS' and status ~= 'PAUSED' then return {-1, status} end
redis.call('RPUSH', KEYS[2], ARGV[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then redis.call('PEXPIRE', KEYS[2], ttl) end
return {1, status}
`)

// setLikeScript writes KEYS[1] with the remaining TTL of KEYS[2].
var setLikeScript = redis.NewScript(`
local ttl = redis.call('PTTL', KEYS[2])
if ttl == -2 then return 0 end
if ttl > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// AttemptStore keeps live attempt state in Redis under per-attempt keys.
type AttemptStore struct {
	rdb *redis.Client
}

// NewAttemptStore creates a new AttemptStore.
func NewAttemptStore(rdb *redis.Client) *AttemptStore {
	return &AttemptStore{rdb: rdb}
}

// Create writes the attempt skeleton and its bound definition with ttl.
func (s *AttemptStore) Create(ctx context.Context, a *model.Attempt, def *model.ExamDefinition, ttl time.Duration) error {
	id := a.ID.String()

	meta, err := encodeMeta(a)
	if err != nil {
		return err
	}
	defJSON, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, config.CacheKey.AttemptStatusKey(id), string(a.Status), ttl)
		pipe.Set(ctx, config.CacheKey.AttemptMetaKey(id), meta, ttl)
		pipe.Set(ctx, config.CacheKey.AttemptExamKey(id), defJSON, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

// Get loads the attempt with answers, flags, risk profile and result.
func (s *AttemptStore) Get(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	id := attemptID.String()

	pipe := s.rdb.Pipeline()
	metaCmd := pipe.Get(ctx, config.CacheKey.AttemptMetaKey(id))
	statusCmd := pipe.Get(ctx, config.CacheKey.AttemptStatusKey(id))
	answersCmd := pipe.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(id))
	flagsCmd := pipe.SMembers(ctx, config.CacheKey.AttemptFlagsKey(id))
	riskCmd := pipe.Get(ctx, config.CacheKey.AttemptRiskKey(id))
	resultCmd := pipe.Get(ctx, config.CacheKey.AttemptResultKey(id))
	cursorCmd := pipe.Get(ctx, config.CacheKey.AttemptCursorKey(id))
	revCmd := pipe.Get(ctx, config.CacheKey.AttemptRevKey(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load attempt: %w", err)
	}

	metaRaw, err := metaCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load attempt meta: %w", err)
	}
	status, err := statusCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load attempt status: %w", err)
	}

	var a model.Attempt
	if err := json.Unmarshal(metaRaw, &a); err != nil {
		return nil, fmt.Errorf("decode attempt meta: %w", err)
	}
	a.Status = model.AttemptStatus(status)
	if n, err := cursorCmd.Int(); err == nil {
		a.CurrentIndex = n
	}
	if n, err := revCmd.Int64(); err == nil {
		a.Rev = n
	}

	a.Answers = make(map[string]model.Answer, len(answersCmd.Val()))
	for qid, raw := range answersCmd.Val() {
		var ans model.Answer
		if err := json.Unmarshal([]byte(raw), &ans); err != nil {
			return nil, fmt.Errorf("decode answer %s: %w", qid, err)
		}
		a.Answers[qid] = ans
	}

	a.Flagged = flagsCmd.Val()
	slices.Sort(a.Flagged)

	if raw, err := riskCmd.Bytes(); err == nil {
		var p model.RiskProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode risk profile: %w", err)
		}
		a.Risk = &p
	}
	if raw, err := resultCmd.Bytes(); err == nil {
		var r model.Result
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		a.Result = &r
	}

	return &a, nil
}

// Status returns only the lifecycle status.
func (s *AttemptStore) Status(ctx context.Context, attemptID uuid.UUID) (model.AttemptStatus, error) {
	status, err := s.rdb.Get(ctx, config.CacheKey.AttemptStatusKey(attemptID.String())).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get status: %w", err)
	}
	return model.AttemptStatus(status), nil
}

// Definition returns the exam definition bound to the attempt at start.
func (s *AttemptStore) Definition(ctx context.Context, attemptID uuid.UUID) (*model.ExamDefinition, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.AttemptExamKey(attemptID.String())).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bound definition: %w", err)
	}
	var def model.ExamDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("decode bound definition: %w", err)
	}
	return &def, nil
}

// Transition moves the attempt to status `to` and stores a's metadata in one
// step. It applies only if the status is one of `from` and no other
// transition happened since a was loaded (a.Rev). On success a carries the
// new status and revision. It returns the status observed before the write;
// a rejected write yields a *StatusError.
func (s *AttemptStore) Transition(ctx context.Context, a *model.Attempt, to model.AttemptStatus, from ...model.AttemptStatus) (model.AttemptStatus, error) {
	return s.transition(ctx, a, "", nil, to, from)
}

// Evaluate stores the graded result and moves a SUBMITTED attempt to
// EVALUATED in one step, under the same revision guard as Transition.
func (s *AttemptStore) Evaluate(ctx context.Context, a *model.Attempt, r *model.Result) (model.AttemptStatus, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return s.transition(ctx, a, config.CacheKey.AttemptResultKey(a.ID.String()), raw,
		model.StatusEvaluated, []model.AttemptStatus{model.StatusSubmitted})
}

func (s *AttemptStore) transition(ctx context.Context, a *model.Attempt, extraKey string, extra []byte, to model.AttemptStatus, from []model.AttemptStatus) (model.AttemptStatus, error) {
	id := a.ID.String()
	meta, err := encodeMeta(a)
	if err != nil {
		return "", err
	}

	keys := []string{
		config.CacheKey.AttemptStatusKey(id),
		config.CacheKey.AttemptMetaKey(id),
		config.CacheKey.AttemptRevKey(id),
	}
	if extraKey != "" {
		keys = append(keys, extraKey)
	}
	args := make([]any, 0, len(from)+4)
	args = append(args, string(to), strconv.FormatInt(a.Rev, 10), meta, extra)
	for _, f := range from {
		args = append(args, string(f))
	}

	res, err := transitionScript.Run(ctx, s.rdb, keys, args...).Slice()
	if err != nil {
		return "", fmt.Errorf("transition to %s: %w", to, err)
	}
	code, prev, err := parseGuard(res)
	if err != nil {
		return "", err
	}
	switch code {
	case 1:
		a.Status = to
		a.Rev++
		return prev, nil
	case 0:
		return prev, &StatusError{Status: prev}
	case -3:
		return prev, &StatusError{Status: prev, Stale: true}
	default:
		return "", ErrNotFound
	}
}

// MoveCursor stores the current question index while the attempt is
// IN_PROGRESS or PAUSED. Without allowBack an index below the stored one
// yields ErrCursorBackward.
func (s *AttemptStore) MoveCursor(ctx context.Context, attemptID uuid.UUID, index int, allowBack bool) error {
	id := attemptID.String()
	back := "0"
	if allowBack {
		back = "1"
	}
	res, err := cursorScript.Run(ctx, s.rdb,
		[]string{config.CacheKey.AttemptStatusKey(id), config.CacheKey.AttemptCursorKey(id)},
		index, back,
	).Slice()
	if err != nil {
		return fmt.Errorf("move cursor: %w", err)
	}
	code, status, err := parseGuard(res)
	if err != nil {
		return err
	}
	switch code {
	case 1:
		return nil
	case 0:
		return ErrCursorBackward
	case -1:
		return &StatusError{Status: status}
	default:
		return ErrNotFound
	}
}

// SaveRisk stores the latest risk profile.
func (s *AttemptStore) SaveRisk(ctx context.Context, attemptID uuid.UUID, p *model.RiskProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal risk profile: %w", err)
	}
	return s.setLike(ctx, attemptID, config.CacheKey.AttemptRiskKey(attemptID.String()), raw)
}

func (s *AttemptStore) setLike(ctx context.Context, attemptID uuid.UUID, key string, value []byte) error {
	ok, err := setLikeScript.Run(ctx, s.rdb,
		[]string{key, config.CacheKey.AttemptStatusKey(attemptID.String())},
		value,
	).Int()
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if ok == 0 {
		return ErrNotFound
	}
	return nil
}

// CompareAndSwapStatus moves the status to `to` if it currently is one of
// `from`, leaving the metadata untouched. It returns the status observed
// before the write. A mismatch yields a *StatusError.
func (s *AttemptStore) CompareAndSwapStatus(ctx context.Context, attemptID uuid.UUID, to model.AttemptStatus, from ...model.AttemptStatus) (model.AttemptStatus, error) {
	args := make([]any, 0, len(from)+1)
	args = append(args, string(to))
	for _, f := range from {
		args = append(args, string(f))
	}

	id := attemptID.String()
	res, err := statusScript.Run(ctx, s.rdb,
		[]string{config.CacheKey.AttemptStatusKey(id), config.CacheKey.AttemptRevKey(id)},
		args...,
	).Slice()
	if err != nil {
		return "", fmt.Errorf("swap status: %w", err)
	}
	code, prev, err := parseGuard(res)
	if err != nil {
		return "", err
	}
	switch code {
	case 1:
		return prev, nil
	case 0:
		return prev, &StatusError{Status: prev}
	default:
		return "", ErrNotFound
	}
}

// PutAnswer applies ans if the attempt is IN_PROGRESS and ans.Seq is higher
// than the stored sequence for the question.
func (s *AttemptStore) PutAnswer(ctx context.Context, attemptID uuid.UUID, ans *model.Answer) (AnswerOutcome, error) {
	id := attemptID.String()
	raw, err := json.Marshal(ans)
	if err != nil {
		return 0, fmt.Errorf("marshal answer: %w", err)
	}

	res, err := answerScript.Run(ctx, s.rdb,
		[]string{
			config.CacheKey.AttemptStatusKey(id),
			config.CacheKey.AttemptSeqKey(id),
			config.CacheKey.AttemptAnswersKey(id),
		},
		ans.QuestionID, strconv.FormatInt(ans.Seq, 10), raw,
	).Slice()
	if err != nil {
		return 0, fmt.Errorf("put answer: %w", err)
	}
	code, status, err := parseGuard(res)
	if err != nil {
		return 0, err
	}
	switch code {
	case 1:
		return AnswerApplied, nil
	case 0:
		return AnswerStale, nil
	case -1:
		return 0, &StatusError{Status: status}
	default:
		return 0, ErrNotFound
	}
}

// ToggleFlag flips the flag on a question and returns the new state.
func (s *AttemptStore) ToggleFlag(ctx context.Context, attemptID uuid.UUID, questionID string) (bool, error) {
	id := attemptID.String()
	res, err := flagScript.Run(ctx, s.rdb,
		[]string{config.CacheKey.AttemptStatusKey(id), config.CacheKey.AttemptFlagsKey(id)},
		questionID,
	).Slice()
	if err != nil {
		return false, fmt.Errorf("toggle flag: %w", err)
	}
	code, status, err := parseGuard(res)
	if err != nil {
		return false, err
	}
	switch code {
	case 0, 1:
		return code == 1, nil
	case -1:
		return false, &StatusError{Status: status}
	default:
		return false, ErrNotFound
	}
}

// AppendTelemetry records an event and returns the attempt's full history.
func (s *AttemptStore) AppendTelemetry(ctx context.Context, attemptID uuid.UUID, ev *model.TelemetryEvent) ([]model.TelemetryEvent, error) {
	id := attemptID.String()
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal telemetry: %w", err)
	}

	res, err := telemetryScript.Run(ctx, s.rdb,
		[]string{config.CacheKey.AttemptStatusKey(id), config.CacheKey.AttemptTelemetryKey(id)},
		raw,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("append telemetry: %w", err)
	}
	code, status, err := parseGuard(res)
	if err != nil {
		return nil, err
	}
	switch code {
	case 1:
	case -1:
		return nil, &StatusError{Status: status}
	default:
		return nil, ErrNotFound
	}
	return s.Telemetry(ctx, attemptID)
}

// Telemetry returns every recorded event in arrival order.
func (s *AttemptStore) Telemetry(ctx context.Context, attemptID uuid.UUID) ([]model.TelemetryEvent, error) {
	items, err := s.rdb.LRange(ctx, config.CacheKey.AttemptTelemetryKey(attemptID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read telemetry: %w", err)
	}
	events := make([]model.TelemetryEvent, 0, len(items))
	for _, item := range items {
		var ev model.TelemetryEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("decode telemetry: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Expire resets the TTL of every per-attempt key.
func (s *AttemptStore) Expire(ctx context.Context, attemptID uuid.UUID, ttl time.Duration) error {
	pipe := s.rdb.Pipeline()
	for _, key := range config.CacheKey.AttemptKeys(attemptID.String()) {
		pipe.PExpire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("expire attempt: %w", err)
	}
	return nil
}

// Delete removes every per-attempt key and the deadline entry.
func (s *AttemptStore) Delete(ctx context.Context, attemptID uuid.UUID) error {
	id := attemptID.String()
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.AttemptKeys(id)...)
	pipe.ZRem(ctx, config.CacheKey.AttemptDeadlinesKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete attempt: %w", err)
	}
	return nil
}

// TrackDeadline indexes the attempt for the sweeper at the given due time.
func (s *AttemptStore) TrackDeadline(ctx context.Context, attemptID uuid.UUID, due time.Time) error {
	err := s.rdb.ZAdd(ctx, config.CacheKey.AttemptDeadlinesKey(), redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: attemptID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("track deadline: %w", err)
	}
	return nil
}

// UntrackDeadline removes the attempt from the sweeper index.
func (s *AttemptStore) UntrackDeadline(ctx context.Context, attemptID uuid.UUID) error {
	if err := s.rdb.ZRem(ctx, config.CacheKey.AttemptDeadlinesKey(), attemptID.String()).Err(); err != nil {
		return fmt.Errorf("untrack deadline: %w", err)
	}
	return nil
}

// DueAttempts returns up to limit attempt IDs whose due time is at or before now.
func (s *AttemptStore) DueAttempts(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	members, err := s.rdb.ZRangeByScore(ctx, config.CacheKey.AttemptDeadlinesKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("due attempts: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			// Not ours; drop it so it cannot wedge the head of the index.
			_ = s.rdb.ZRem(ctx, config.CacheKey.AttemptDeadlinesKey(), m).Err()
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func encodeMeta(a *model.Attempt) ([]byte, error) {
	meta := *a
	meta.Status = ""
	meta.CurrentIndex = 0
	meta.Rev = 0
	meta.Answers = nil
	meta.Flagged = nil
	meta.Risk = nil
	meta.Result = nil
	raw, err := json.Marshal(&meta)
	if err != nil {
		return nil, fmt.Errorf("marshal attempt meta: %w", err)
	}
	return raw, nil
}

func parseGuard(res []any) (int64, model.AttemptStatus, error) {
	if len(res) != 2 {
		return 0, "", fmt.Errorf("unexpected script reply %v", res)
	}
	code, ok := res[0].(int64)
	if !ok {
		return 0, "", fmt.Errorf("unexpected script code %T", res[0])
	}
	status, _ := res[1].(string)
	return code, model.AttemptStatus(status), nil
}
