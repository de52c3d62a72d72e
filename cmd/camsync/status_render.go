package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"camsync/internal/ledger"
)

// tone classifies a status value for colouring.
type tone int

const (
	toneNeutral tone = iota
	toneGood
	toneWarn
	toneBad
)

var toneColors = map[tone]text.Colors{
	toneGood: {text.FgGreen},
	toneWarn: {text.FgYellow},
	toneBad:  {text.FgRed},
}

func outcomeTone(outcome ledger.BuildOutcome) tone {
	switch outcome {
	case ledger.OutcomeBuilt, ledger.OutcomeSkipped:
		return toneGood
	case ledger.OutcomeMissing:
		return toneWarn
	case ledger.OutcomeFailed:
		return toneBad
	default:
		return toneNeutral
	}
}

func runTone(status ledger.RunStatus) tone {
	switch status {
	case ledger.RunCompleted:
		return toneGood
	case ledger.RunCancelled:
		return toneWarn
	case ledger.RunFailed:
		return toneBad
	default:
		return toneNeutral
	}
}

func checkTone(passed bool) tone {
	if passed {
		return toneGood
	}
	return toneBad
}

// painter colours output only when it goes to a terminal.
type painter struct {
	enabled bool
}

func newPainter(w io.Writer) painter {
	file, ok := w.(*os.File)
	if !ok {
		return painter{}
	}
	fd := file.Fd()
	return painter{enabled: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)}
}

func (p painter) paint(t tone, s string) string {
	colors, ok := toneColors[t]
	if !p.enabled || !ok {
		return s
	}
	return colors.Sprint(s)
}

func (p painter) section(title string) string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if p.enabled {
		line = text.Bold.Sprint(line)
	}
	return line + "\n" + rule
}

// field renders "  label: value" with the value coloured by t.
func (p painter) field(label, value string, t tone) string {
	return fmt.Sprintf("  %-18s %s", label+":", p.paint(t, value))
}

// check renders a preflight result as "  name: [PASS] detail".
func (p painter) check(name string, passed bool, detail string) string {
	tag := "[PASS]"
	if !passed {
		tag = "[FAIL]"
	}
	return p.field(name, p.paint(checkTone(passed), tag)+" "+detail, toneNeutral)
}
