package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/gate"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/triage"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	redBg  = color.New(color.BgRed, color.FgWhite, color.Bold).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

func actionLabel(action gate.Action) string {
	switch action {
	case gate.ActionAutoProcess:
		return green("AUTO-PROCESS")
	case gate.ActionAskConfirm:
		return yellow("ASK-CONFIRM")
	case gate.ActionEscalate:
		return red("ESCALATE")
	case gate.ActionEmergency:
		return redBg(" NOTFALL ")
	default:
		return string(action)
	}
}

func renderResult(w io.Writer, result *triage.ClassificationResult) {
	fmt.Fprintf(w, "%s %s  %s\n", actionLabel(result.Decision.Action), gray(result.ID), gray(result.Duration.Round(time.Millisecond).String()))
	if !result.Success {
		fmt.Fprintf(w, "  %s %s\n", red("Fehler:"), result.Error)
	}
	fmt.Fprintf(w, "  %s %s\n", bold("Grund:"), result.Decision.Reason)
	if len(result.Decision.MissingSlots) > 0 {
		fmt.Fprintf(w, "  %s %s\n", bold("Fehlende Angaben:"), strings.Join(result.Decision.MissingSlots, ", "))
	}
	if result.Decision.Urgency != "" {
		fmt.Fprintf(w, "  %s %s\n", bold("Dringlichkeit:"), string(result.Decision.Urgency))
	}

	for i, item := range result.Response.Items {
		line := fmt.Sprintf("  [%d] %s (%.2f) → %s", i+1, item.Intent, item.Confidence, item.NextAction)
		fmt.Fprintln(w, line)
		if i < len(result.Normalized) && result.Normalized[i] != nil && result.Normalized[i].Resolved != nil {
			norm := result.Normalized[i]
			verdict := green("innerhalb der Sprechzeiten")
			if !norm.WithinBusinessHours {
				verdict = yellow("außerhalb der Sprechzeiten")
			}
			fmt.Fprintf(w, "      %s (%s)\n", norm.Display, verdict)
		}
	}

	if result.Plan != nil && len(result.Plan.Buckets) > 0 {
		fmt.Fprintf(w, "  %s %s, ca. %d min, Komplexität %s\n",
			bold("Plan:"), orderString(result), result.Plan.EstimatedMinutes, result.Plan.Complexity.Level)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "  %s %s\n", yellow("Hinweis:"), warning)
	}
}

func orderString(result *triage.ClassificationResult) string {
	parts := make([]string, len(result.Plan.Order))
	for i, intent := range result.Plan.Order {
		parts[i] = string(intent)
	}
	return strings.Join(parts, " → ")
}
