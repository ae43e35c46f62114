package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestDetectTheme(t *testing.T) {
	t.Setenv("COLORFGBG", "")
	t.Setenv("ORASIM_LIGHT_MODE", "1")
	assert.False(t, DetectTheme().IsDark)

	t.Setenv("ORASIM_LIGHT_MODE", "")
	assert.True(t, DetectTheme().IsDark)

	t.Setenv("COLORFGBG", "0;15")
	assert.False(t, DetectTheme().IsDark)
	t.Setenv("COLORFGBG", "15;0")
	assert.True(t, DetectTheme().IsDark)
}

func TestRenderGauge(t *testing.T) {
	s := NewStyles(DarkTheme())
	for _, pct := range []int{-5, 0, 35, 100, 140} {
		g := s.RenderGauge(pct, 10)
		assert.Equal(t, 10, lipgloss.Width(g), "pct %d", pct)
	}
	plain := s.RenderGauge(50, 10)
	assert.Equal(t, 5, strings.Count(plain, "█"))
}

func TestRenderStatus(t *testing.T) {
	s := NewStyles(LightTheme())
	line := s.RenderStatus("dbserver01", 3, 20, 15, 80)
	assert.Contains(t, line, "dbserver01")
	assert.Contains(t, line, "3/20")
	assert.Equal(t, 80, lipgloss.Width(line))
}
