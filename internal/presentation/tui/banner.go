package tui

import (
	"fmt"

	"github.com/muesli/termenv"
)

// PrintBanner writes the routeflow banner to out. Nothing is written on
// profiles without colour support.
func PrintBanner(out *termenv.Output) {
	if out.Profile == termenv.Ascii {
		return
	}
	lines := []struct{ text, color string }{
		{"                 _        __ _               ", "#818cf8"},
		{"  _ __ ___  _  _| |_ ___ / _| |_____ __ __  ", "#a78bfa"},
		{" | '_/ _ \\| || |  _/ -_)  _| / _ \\ V  V /  ", "#c084fc"},
		{" |_| \\___/ \\_,_|\\__\\___|_| |_\\___/\\_/\\_/   ", "#f472b6"},
	}

	fmt.Fprintln(out)
	for _, l := range lines {
		fmt.Fprintln(out, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(out)
}
