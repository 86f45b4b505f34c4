// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// MODEL DESCRIPTOR
// =============================================================================

// Tier categorizes a model's capability level.
type Tier string

const (
	TierDefault  Tier = "default"
	TierFast     Tier = "fast"
	TierUltimate Tier = "ultimate"
	TierResearch Tier = "research"
)

// Descriptor describes one selectable model. Key is the product-facing name
// the user picks; ProviderID is the identifier sent on the wire. Several keys
// may share a ProviderID.
type Descriptor struct {
	Key         string `json:"key"`
	ProviderID  string `json:"provider_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Tier        Tier   `json:"tier"`

	// CreditCost is the nominal per-request cost shown to the user.
	CreditCost int `json:"credit_cost"`

	// WebResearch models get a research-context system message prepended
	// before every request.
	WebResearch bool `json:"web_research,omitempty"`
}

// Model keys.
const (
	KeyThinking = "thinking"
	KeyPro      = "pro"
	Key600B     = "600b"
	KeyResearch = "research"
)

// DefaultModel is used when the caller does not name a model.
const DefaultModel = KeyThinking

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// Models is the registry of selectable models keyed by Descriptor.Key.
var Models = map[string]Descriptor{
	KeyThinking: {
		Key:         KeyThinking,
		ProviderID:  "deepseek-reasoner",
		Name:        "Vibe Thinking 1.5",
		Description: "Advanced reasoning with deep thinking capabilities",
		Tier:        TierDefault,
		CreditCost:  3,
	},
	KeyPro: {
		Key:         KeyPro,
		ProviderID:  "deepseek-chat",
		Name:        "Vibe Pro",
		Description: "Fast and efficient code generation",
		Tier:        TierFast,
		CreditCost:  1,
	},
	Key600B: {
		Key:         Key600B,
		ProviderID:  "deepseek-reasoner",
		Name:        "Vibe 600B",
		Description: "Most powerful model, unmatched quality and depth",
		Tier:        TierUltimate,
		CreditCost:  100,
	},
	KeyResearch: {
		Key:         KeyResearch,
		ProviderID:  "deepseek-reasoner",
		Name:        "Vibe Research",
		Description: "Research-focused model with internet-backed context and citations",
		Tier:        TierResearch,
		CreditCost:  5,
		WebResearch: true,
	},
}

// Lookup returns the descriptor for key. Matching is case-insensitive and also
// accepts the display name.
func Lookup(key string) (Descriptor, bool) {
	k := strings.ToLower(strings.TrimSpace(key))
	if d, ok := Models[k]; ok {
		return d, true
	}
	for _, d := range Models {
		if strings.EqualFold(d.Name, key) {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Keys returns the registry keys in a stable order (by tier cost, then key).
func Keys() []string {
	keys := make([]string, 0, len(Models))
	for k := range Models {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := Models[keys[i]], Models[keys[j]]
		if a.CreditCost != b.CreditCost {
			return a.CreditCost < b.CreditCost
		}
		return a.Key < b.Key
	})
	return keys
}

// CostString formats the nominal cost for display.
func (d Descriptor) CostString() string {
	if d.CreditCost == 1 {
		return "1 credit"
	}
	return fmt.Sprintf("%d credits", d.CreditCost)
}

// TierIcon returns a short tag for list output.
func (d Descriptor) TierIcon() string {
	switch d.Tier {
	case TierFast:
		return "[fast]"
	case TierUltimate:
		return "[ultimate]"
	case TierResearch:
		return "[research]"
	default:
		return "[default]"
	}
}
