package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{"        _           _        __ _", "#818cf8"},
	{"   ___ | |__   __ _(_)_ __  / _| | _____      __", "#a78bfa"},
	{"  / __|| '_ \\ / _` | | '_ \\| |_| |/ _ \\ \\ /\\ / /", "#c084fc"},
	{" | (__ | | | | (_| | | | | |  _| | (_) \\ V  V /", "#e879f9"},
	{"  \\___||_| |_|\\__,_|_|_| |_|_| |_|\\___/ \\_/\\_/", "#f472b6"},
}

// PrintBanner writes the chainflow ASCII banner followed by the version.
func PrintBanner(w io.Writer, version string) {
	p := termenv.EnvColorProfile()

	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, p.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
