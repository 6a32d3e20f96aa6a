// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dialog

import (
	"github.com/charmbracelet/lipgloss"
)

// RenderLayer draws body inside a bordered box sized to the layer's
// effective area. Layers too small for a border render as an empty string.
func RenderLayer(l Layer, body string, style lipgloss.Style) string {
	area := l.EffectiveArea()
	if !l.Visible || area.Width < 2 || area.Height < 2 {
		return ""
	}
	frameW, frameH := style.GetHorizontalFrameSize(), style.GetVerticalFrameSize()
	innerW, innerH := max(0, area.Width-frameW), max(0, area.Height-frameH)
	return style.
		Width(innerW + style.GetHorizontalPadding()).
		Height(innerH + style.GetVerticalPadding()).
		MaxWidth(area.Width).
		MaxHeight(area.Height).
		Render(body)
}
