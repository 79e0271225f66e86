//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

package engine

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/text/language"

	"github.com/woyin/refly-sub002/skill"
)

// Message roles in the rendered history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// defaultLocale is the display locale used when detection fails.
const defaultLocale = "en-US"

// supportedLocales are the display locales the engine can render tool
// activity in. Requested locales are matched against this set.
var supportedLocales = []language.Tag{
	language.AmericanEnglish, // en-US, also the fallback
	language.SimplifiedChinese,
	language.TraditionalChinese,
	language.Japanese,
	language.Korean,
	language.German,
	language.French,
	language.Spanish,
}

var localeMatcher = language.NewMatcher(supportedLocales)

// ConfigMessage is one turn of the rendered conversation history.
type ConfigMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RunConfig is the per-run configuration consumed by the runtime. It is
// assembled once per invocation and immutable afterwards.
type RunConfig struct {
	// User is the requesting user.
	User skill.User
	// ResultID and Version identify the invocation attempt.
	ResultID string
	Version  int
	// SkillName names the invoked skill.
	SkillName string
	// Input is the current user input.
	Input string
	// Images are the input images.
	Images []skill.Image
	// Context references the entities provided as run context.
	Context []skill.ContextRef
	// Target is the optional entity the result attaches to.
	Target *skill.Target
	// Model selects the provider and model.
	Model skill.ModelConfig
	// Locale is the detected display locale.
	Locale string
	// Tools is the resolved tool instances for this run.
	Tools []skill.ResolvedTool
	// Messages is the deduplicated turn-by-turn history, oldest first,
	// ending with the current user input.
	Messages []ConfigMessage
}

// buildRunConfig assembles the per-run configuration: deduplicated history,
// resolved tool instances and a detected display locale.
func buildRunConfig(ctx context.Context, req *skill.Request, resolver skill.ToolsetResolver) (*RunConfig, error) {
	cfg := &RunConfig{
		User:      req.User,
		ResultID:  req.ResultID,
		Version:   req.Version,
		SkillName: req.SkillName,
		Input:     req.Input,
		Images:    req.Images,
		Context:   req.Context,
		Target:    req.Target,
		Model:     req.Model,
		Locale:    detectLocale(req.Locale, req.User.PreferredLocale),
		Messages:  renderHistory(req),
	}

	if resolver != nil && len(req.Toolsets) > 0 {
		tools, err := resolver.Resolve(ctx, req.User.UID, req.Toolsets)
		if err != nil {
			return nil, fmt.Errorf("resolve toolsets: %w", err)
		}
		cfg.Tools = tools
	}
	return cfg, nil
}

// renderHistory dedupes prior results by resultID keeping the latest
// version, orders them oldest-first and renders them into turn pairs
// followed by the current user input.
func renderHistory(req *skill.Request) []ConfigMessage {
	latest := make(map[string]skill.HistoryResult, len(req.History))
	for _, item := range req.History {
		if existing, ok := latest[item.ResultID]; ok && existing.Version >= item.Version {
			continue
		}
		latest[item.ResultID] = item
	}

	deduped := make([]skill.HistoryResult, 0, len(latest))
	for _, item := range latest {
		deduped = append(deduped, item)
	}
	sort.Slice(deduped, func(i, j int) bool {
		return deduped[i].CreatedAt.Before(deduped[j].CreatedAt)
	})

	messages := make([]ConfigMessage, 0, len(deduped)*2+1)
	for _, item := range deduped {
		if item.Input != "" {
			messages = append(messages, ConfigMessage{Role: RoleUser, Content: item.Input})
		}
		if item.Content != "" {
			messages = append(messages, ConfigMessage{Role: RoleAssistant, Content: item.Content})
		}
	}
	messages = append(messages, ConfigMessage{Role: RoleUser, Content: req.Input})
	return messages
}

// detectLocale picks the display locale from the candidates, falling back
// to en-US when nothing matches.
func detectLocale(candidates ...string) string {
	tags := make([]language.Tag, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		tag, err := language.Parse(candidate)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return defaultLocale
	}
	_, index, confidence := localeMatcher.Match(tags...)
	if confidence == language.No {
		return defaultLocale
	}
	tag := supportedLocales[index]
	return tag.String()
}
