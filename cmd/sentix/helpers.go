package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/sentix/internal/config"
	"github.com/abelbrown/sentix/internal/otel"
	"github.com/abelbrown/sentix/internal/store"
)

// dataDir returns the configured data directory without creating it.
func dataDir(configPath string) string {
	if configPath == "" {
		configPath = config.ConfigPath()
	}
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return config.DefaultConfig().ResolveDataDir()
	}
	return cfg.ResolveDataDir()
}

// eventLogPath returns the path to events.jsonl.
func eventLogPath(dir string) string {
	return filepath.Join(dir, otel.FileName)
}

// openDB opens the store or exits.
func openDB(dir string) *store.Store {
	if _, err := os.Stat(dbPath(dir)); err != nil {
		fatal(err)
	}
	st, err := store.Open(dbPath(dir))
	if err != nil {
		fatal(err)
	}
	return st
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	kindStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	levelStyles = map[otel.Level]lipgloss.Style{
		otel.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		otel.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		otel.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		otel.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
	}

	sentimentStyles = map[string]lipgloss.Style{
		"BULLISH": lipgloss.NewStyle().Foreground(lipgloss.Color("78")).Bold(true),
		"BEARISH": lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		"NEUTRAL": lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
	}
)

func styleLevel(l otel.Level) string {
	label := string(l)
	if label == "" {
		label = "?"
	}
	label = fmt.Sprintf("%-5s", strings.ToUpper(label))
	if s, ok := levelStyles[l]; ok {
		return s.Render(label)
	}
	return label
}

func styleSentiment(s string) string {
	if st, ok := sentimentStyles[s]; ok {
		return st.Render(s)
	}
	return s
}
