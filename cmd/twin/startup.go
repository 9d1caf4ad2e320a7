package main

import (
	"context"
	"fmt"

	"github.com/MikeSquared-Agency/twin/internal/corpus"
	"github.com/MikeSquared-Agency/twin/internal/hermes"
)

type questionSource interface {
	Subscribe(subject string, handler func(subject string, data []byte)) error
}

type corpusLoader interface {
	Reload(ctx context.Context) (*corpus.Snapshot, error)
}

// loadThenSubscribe builds the first snapshot and only then starts consuming
// questions, so nothing is answered from the empty placeholder corpus.
// questions may be nil when NATS is not configured.
func loadThenSubscribe(ctx context.Context, loader corpusLoader, questions questionSource, handle func(subject string, data []byte)) (*corpus.Snapshot, error) {
	snap, err := loader.Reload(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	if questions == nil {
		return snap, nil
	}
	if err := questions.Subscribe(hermes.SubjectQuestionAsked, handle); err != nil {
		return nil, fmt.Errorf("subscribe to questions: %w", err)
	}
	return snap, nil
}
