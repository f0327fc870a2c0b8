package ui

import "strings"

const (
	reset     = "\033[0m"
	bold      = "\033[1m"
	heapRed   = "\033[38;5;203m"
	pageAmber = "\033[38;5;214m"
	rssYellow = "\033[38;5;221m"
	tabGreen  = "\033[38;5;114m"
	slabCyan  = "\033[38;5;80m"
	swapBlue  = "\033[38;5;69m"
)

// Tagline follows the wordmark.
const Tagline = "browser memory, one tab at a time"

var letters = [][]string{
	{"████████╗", "╚══██╔══╝", "   ██║   ", "   ██║   ", "   ██║   ", "   ╚═╝   "},
	{" █████╗ ", "██╔══██╗", "███████║", "██╔══██║", "██║  ██║", "╚═╝  ╚═╝"},
	{"██████╗ ", "██╔══██╗", "██████╔╝", "██╔══██╗", "██████╔╝", "╚═════╝ "},
	{"███╗   ███╗", "████╗ ████║", "██╔████╔██║", "██║╚██╔╝██║", "██║ ╚═╝ ██║", "╚═╝     ╚═╝"},
	{"███████╗", "██╔════╝", "█████╗  ", "██╔══╝  ", "███████╗", "╚══════╝"},
	{"███╗   ███╗", "████╗ ████║", "██╔████╔██║", "██║╚██╔╝██║", "██║ ╚═╝ ██║", "╚═╝     ╚═╝"},
}

var gradient = []string{heapRed, pageAmber, rssYellow, tabGreen, slabCyan, swapBlue}

// Banner renders the tabmem wordmark. Without color it contains no escape codes.
func Banner(color bool) string {
	paint := func(code, s string) string {
		if !color {
			return s
		}
		return code + s
	}
	end := ""
	if color {
		end = reset
	}

	var b strings.Builder
	rows := make([]string, len(letters[0]))
	for i, letter := range letters {
		code := gradient[i%len(gradient)]
		for row := range letter {
			rows[row] += paint(code, letter[row]) + " "
		}
	}
	for _, line := range rows {
		b.WriteString(paint(bold, line) + end + "\n")
	}

	b.WriteString("\n")
	b.WriteString(paint(bold+heapRed, "tabmem") + end + "  •  " + Tagline + "\n\n")
	return b.String()
}
