//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

package credit

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"

	"github.com/woyin/refly-sub002/event"
)

// Estimator produces a best-effort token usage estimate from partial content.
// It is used when a run is aborted before the provider reports usage, so the
// user is still billed for the work actually produced.
type Estimator struct {
	encoding tokenizer.Codec
}

// NewEstimator creates a tokenizer-backed estimator for the model. Unknown
// models fall back to cl100k_base for broad compatibility.
func NewEstimator(modelName string) (*Estimator, error) {
	enc, err := tokenizer.ForModel(tokenizer.Model(modelName))
	if err != nil {
		enc, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, fmt.Errorf("get fallback tokenizer: %w", err)
		}
	}
	return &Estimator{encoding: enc}, nil
}

// EstimateUsage estimates token usage from the input and the partial output
// produced before the run ended.
func (e *Estimator) EstimateUsage(provider, model, input, output string) (*event.Usage, error) {
	inputTokens, err := e.count(input)
	if err != nil {
		return nil, fmt.Errorf("count input tokens: %w", err)
	}
	outputTokens, err := e.count(output)
	if err != nil {
		return nil, fmt.Errorf("count output tokens: %w", err)
	}
	return &event.Usage{
		Provider:     provider,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

func (e *Estimator) count(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	toks, _, err := e.encoding.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(toks), nil
}
