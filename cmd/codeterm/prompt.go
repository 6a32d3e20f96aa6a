// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/AleutianAI/codeterm/services/policy_engine"
)

const (
	choiceOnce    = "once"
	choiceSession = "session"
	choiceDeny    = "deny"
)

// huhPrompt asks on the terminal whether a prompted operation may run.
func huhPrompt(ctx context.Context, pctx policy_engine.Context, reason string) (policy_engine.PromptResponse, error) {
	choice := choiceDeny
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(fmt.Sprintf("Allow %s to %s?", pctx.Tool, pctx.RiskLevel().Verb())).
			Description(describeContext(pctx)+"\n"+reason).
			Options(
				huh.NewOption("Allow once", choiceOnce),
				huh.NewOption("Allow for this session", choiceSession),
				huh.NewOption("Deny", choiceDeny),
			).
			Value(&choice),
	)).WithTheme(huh.ThemeBase16())

	if err := form.RunWithContext(ctx); err != nil {
		return policy_engine.PromptResponse{}, err
	}
	return responseFor(choice), nil
}

func responseFor(choice string) policy_engine.PromptResponse {
	switch choice {
	case choiceOnce:
		return policy_engine.PromptResponse{Allow: true}
	case choiceSession:
		return policy_engine.PromptResponse{Allow: true, Remember: true}
	default:
		return policy_engine.PromptResponse{}
	}
}

// assumePrompt answers every prompt the same way without asking.
func assumePrompt(allow bool) policy_engine.PromptHandler {
	return policy_engine.PromptFunc(func(context.Context, policy_engine.Context, string) (policy_engine.PromptResponse, error) {
		return policy_engine.PromptResponse{Allow: allow}, nil
	})
}
