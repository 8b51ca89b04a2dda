package models

import "strings"

// TeamInfo describes a team to the nodes that plan and route work.
type TeamInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tools       []string `json:"tools,omitempty"`
}

// Roster is the fixed list of teams known when a graph is built.
type Roster []TeamInfo

// Names returns the team names in roster order.
func (r Roster) Names() []string {
	names := make([]string, len(r))
	for i, t := range r {
		names[i] = t.Name
	}
	return names
}

// Has reports whether name is a team in the roster.
func (r Roster) Has(name string) bool {
	_, ok := r.Team(name)
	return ok
}

// Team returns the named team.
func (r Roster) Team(name string) (TeamInfo, bool) {
	for _, t := range r {
		if t.Name == name {
			return t, true
		}
	}
	return TeamInfo{}, false
}

// Resolve matches a loosely written team name ("Math Team", "math-team")
// to a roster name. Exact matches win.
func (r Roster) Resolve(name string) (string, bool) {
	if r.Has(name) {
		return name, true
	}
	want := normalizeTeamName(name)
	for _, t := range r {
		if normalizeTeamName(t.Name) == want {
			return t.Name, true
		}
	}
	return "", false
}

// HasTool reports whether the named team exposes tool.
func (r Roster) HasTool(team, tool string) bool {
	t, ok := r.Team(team)
	if !ok {
		return false
	}
	for _, name := range t.Tools {
		if name == tool {
			return true
		}
	}
	return false
}

// Describe renders the roster as one line per team for prompts.
func (r Roster) Describe() string {
	var b strings.Builder
	for _, t := range r {
		b.WriteString("- ")
		b.WriteString(t.Name)
		if t.Description != "" {
			b.WriteString(": ")
			b.WriteString(t.Description)
		}
		if len(t.Tools) > 0 {
			b.WriteString(" (tools: ")
			b.WriteString(strings.Join(t.Tools, ", "))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func normalizeTeamName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(name)
}
