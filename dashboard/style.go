package dashboard

import (
	"github.com/logrusorgru/aurora"
	"github.com/textileio/minion/api/jobsd/model"
)

// Paint colours a value for the terminal.
type Paint func(arg interface{}) aurora.Value

type statusStyle struct {
	icon  string
	paint Paint
}

var statusStyles = map[model.Status]statusStyle{
	model.StatusPending:   {icon: "○", paint: aurora.BrightBlack},
	model.StatusQueued:    {icon: "◷", paint: aurora.Magenta},
	model.StatusRunning:   {icon: "↻", paint: aurora.Blue},
	model.StatusCancelled: {icon: "⊘", paint: aurora.Yellow},
	model.StatusFailed:    {icon: "✖", paint: aurora.Red},
	model.StatusFinished:  {icon: "✔", paint: aurora.Green},
	model.StatusArchived:  {icon: "▣", paint: aurora.BrightBlack},
}

func styleFor(status model.Status) statusStyle {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return statusStyles[model.StatusPending]
}

// StatusIcon returns the coloured glyph for a job status.
func StatusIcon(status model.Status) string {
	s := styleFor(status)
	return s.paint(s.icon).String()
}

var clientPaints = map[string]Paint{
	"flame":  aurora.Red,
	"tower":  aurora.Green,
	"runic":  aurora.Blue,
	"rift":   aurora.Yellow,
	"scry":   aurora.Magenta,
	"arcane": aurora.Magenta,
	"minion": aurora.White,
}

// ClientPaint returns the colour of a client name. Unknown clients are gray.
func ClientPaint(client string) Paint {
	if p, ok := clientPaints[client]; ok {
		return p
	}
	return aurora.BrightBlack
}
