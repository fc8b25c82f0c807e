package service

import (
	"encoding/binary"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
	"golang.org/x/crypto/blake2b"
)

// shuffleRand returns a generator seeded from the attempt ID, so the same
// attempt always produces the same order.
func shuffleRand(attemptID uuid.UUID) *rand.Rand {
	sum := blake2b.Sum256(attemptID[:])
	return rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(sum[0:8]),
		binary.LittleEndian.Uint64(sum[8:16]),
	))
}

// buildOrders derives the question order and per-question option order.
// Option orders are only recorded for questions whose options were shuffled.
func buildOrders(attemptID uuid.UUID, def *model.ExamDefinition) ([]string, map[string][]string) {
	rng := shuffleRand(attemptID)

	order := make([]string, len(def.Questions))
	for i, q := range def.Questions {
		order[i] = q.ID
	}
	if def.Flags.ShuffleQuestions {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	if !def.Flags.ShuffleOptions {
		return order, nil
	}

	options := make(map[string][]string)
	for _, q := range def.Questions {
		// True/false keeps its natural order.
		if q.Body.Type() == model.QuestionTrueFalse {
			continue
		}
		choices := q.Body.Choices()
		if len(choices) < 2 {
			continue
		}
		ids := make([]string, len(choices))
		for i, o := range choices {
			ids[i] = o.ID
		}
		rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		options[q.ID] = ids
	}
	return order, options
}

// studentQuestions renders questions [offset, offset+limit) in attempt order.
func studentQuestions(def *model.ExamDefinition, a *model.Attempt, offset, limit int) []model.StudentQuestion {
	end := min(offset+limit, len(a.QuestionOrder))
	if offset >= end {
		return []model.StudentQuestion{}
	}

	out := make([]model.StudentQuestion, 0, end-offset)
	for i := offset; i < end; i++ {
		q, ok := def.Question(a.QuestionOrder[i])
		if !ok {
			continue
		}
		out = append(out, model.StudentQuestion{
			Index:   i,
			ID:      q.ID,
			Type:    q.Body.Type(),
			Text:    q.Text,
			Marks:   q.Marks,
			Options: orderedOptions(q, a.OptionOrder[q.ID]),
		})
	}
	return out
}

func orderedOptions(q *model.Question, order []string) []model.Option {
	choices := q.Body.Choices()
	if len(order) == 0 {
		return choices
	}
	byID := make(map[string]model.Option, len(choices))
	for _, o := range choices {
		byID[o.ID] = o
	}
	out := make([]model.Option, 0, len(order))
	for _, id := range order {
		if o, ok := byID[id]; ok {
			out = append(out, o)
		}
	}
	return out
}
