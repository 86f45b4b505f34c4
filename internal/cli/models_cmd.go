// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models_cmd.go - The "models" command.
package cli

import (
	"fmt"
	"strings"

	"github.com/jeranaias/vibecode/internal/model"
)

// HandleModels lists the selectable models and thinking levels. The
// configured defaults are marked.
func HandleModels(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	defModel := cfg.DefaultModel
	if args.Model != "" {
		defModel = args.Model
	}
	defThinking := cfg.ThinkingLevel
	if args.Thinking != "" {
		defThinking = args.Thinking
	}

	data := ModelsData{}
	for _, k := range model.Keys() {
		d := model.Models[k]
		data.Models = append(data.Models, ModelData{
			Key:         d.Key,
			Name:        d.Name,
			Description: d.Description,
			Tier:        string(d.Tier),
			Credits:     d.CreditCost,
			WebResearch: d.WebResearch,
			Default:     strings.EqualFold(d.Key, defModel),
		})
	}
	for _, lvl := range model.ThinkingLevels() {
		data.Thinking = append(data.Thinking, ThinkingData{
			ID:      lvl.ID,
			Label:   lvl.Label,
			Credits: lvl.Credits,
			Default: strings.EqualFold(lvl.ID, defThinking),
		})
	}

	if args.JSON {
		return NewJSONResponse("models", data).Print()
	}

	fmt.Fprintln(stdout, TitleStyle.Render("Models"))
	for _, m := range data.Models {
		marker := "  "
		if m.Default {
			marker = HighlightStyle.Render("* ")
		}
		d := model.Models[m.Key]
		fmt.Fprintf(stdout, "%s%s%-12s %s\n", marker, RenderLabel(m.Key, 12), d.TierIcon(), DimStyle.Render(d.CostString()))
		if !args.Quiet {
			fmt.Fprintf(stdout, "    %s\n", DimStyle.Render(m.Name+": "+m.Description))
		}
	}
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, TitleStyle.Render("Thinking levels"))
	for _, t := range data.Thinking {
		marker := "  "
		if t.Default {
			marker = HighlightStyle.Render("* ")
		}
		fmt.Fprintf(stdout, "%s%s%s\n", marker, RenderLabel(t.ID, 12), DimStyle.Render(fmt.Sprintf("%s, %d credits", t.Label, t.Credits)))
	}
	return nil
}
