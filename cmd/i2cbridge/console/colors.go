package console

import "github.com/fatih/color"

var (
	Red    = color.New(color.FgRed).SprintFunc()
	Yellow = color.New(color.FgYellow).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	// Cyan marks the shell prompt.
	Cyan  = color.New(color.FgCyan).SprintFunc()
	White = color.New(color.FgHiWhite).SprintFunc()
)
