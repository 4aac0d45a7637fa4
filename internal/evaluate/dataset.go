package evaluate

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/dvloznov/agro-tracker/internal/domain"
	"github.com/dvloznov/agro-tracker/internal/logger"
	"github.com/dvloznov/agro-tracker/internal/pipeline"
	"github.com/dvloznov/agro-tracker/internal/reference"
)

// Split deterministically picks trainSize examples for the prompt and
// returns the rest, in their original order, for testing.
func Split(examples []reference.Example, trainSize int, seed int64) (train, test []reference.Example) {
	if trainSize <= 0 {
		return nil, append([]reference.Example(nil), examples...)
	}
	if trainSize >= len(examples) {
		return append([]reference.Example(nil), examples...), nil
	}

	rng := rand.New(rand.NewSource(seed))
	picked := rng.Perm(len(examples))[:trainSize]

	chosen := make(map[int]bool, trainSize)
	for _, i := range picked {
		chosen[i] = true
		train = append(train, examples[i])
	}
	for i, ex := range examples {
		if !chosen[i] {
			test = append(test, ex)
		}
	}
	return train, test
}

// RecordProcessor extracts records from one message.
type RecordProcessor interface {
	Process(ctx context.Context, msg pipeline.Message) ([]domain.OperationRecord, error)
}

// Collect runs every test example through p and pairs the result with the
// labeled rows.
func Collect(ctx context.Context, p RecordProcessor, test []reference.Example) ([]Pair, error) {
	log := logger.FromContext(ctx)

	pairs := make([]Pair, 0, len(test))
	for i, ex := range test {
		actual, err := p.Process(ctx, pipeline.Message{
			ID:   fmt.Sprintf("eval-%d", i+1),
			Text: ex.Message,
		})
		if err != nil {
			return nil, fmt.Errorf("Collect: message %d: %w", i+1, err)
		}
		expected := ex.Records()
		log.Info().
			Int("message", i+1).
			Int("total", len(test)).
			Int("expected_rows", len(expected)).
			Int("actual_rows", len(actual)).
			Msg("Processed test message")

		pairs = append(pairs, Pair{Message: ex.Message, Expected: expected, Actual: actual})
	}
	return pairs, nil
}

// ErrorCounts tallies errors by type and by column, sorted by count.
func ErrorCounts(errs []CompareError) (byType, byColumn []Count) {
	types := make(map[string]int)
	cols := make(map[string]int)
	for _, e := range errs {
		types[string(e.Type)]++
		cols[e.Column()]++
	}
	return sortedCounts(types), sortedCounts(cols)
}

// Count is one entry of an error tally.
type Count struct {
	Key string
	N   int
}

func sortedCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, n := range m {
		out = append(out, Count{Key: k, N: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].N != out[j].N {
			return out[i].N > out[j].N
		}
		return out[i].Key < out[j].Key
	})
	return out
}
