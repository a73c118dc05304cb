package api

import (
	"net/http"

	"github.com/dabrowsk/upcast/internal/profile"
)

// profileSummary is the list representation of one loaded profile.
type profileSummary struct {
	Name      string              `json:"name"`
	Match     map[string][]string `json:"match"`
	Protocols []string            `json:"protocols"`
	Notes     string              `json:"notes,omitempty"`
}

// handleListProfiles returns the loaded profile set.
//
// GET /api/v1/profiles
func (s *Server) handleListProfiles(w http.ResponseWriter, _ *http.Request) {
	profiles := s.store.Profiles()

	summaries := make([]profileSummary, 0, len(profiles))
	for _, p := range profiles {
		summaries = append(summaries, summarize(p))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(summaries),
		"profiles": summaries,
	})
}

// handleReloadProfiles re-reads the configured profile paths, replacing
// the loaded set.
//
// POST /api/v1/profiles/reload
func (s *Server) handleReloadProfiles(w http.ResponseWriter, _ *http.Request) {
	if err := s.store.Load(s.profCfg.Paths); err != nil {
		s.logger.Error("profile reload failed", "error", err)
		writeInternalError(w, "profile reload failed: "+err.Error())
		return
	}

	s.logger.Info("profiles reloaded", "count", s.store.Count())
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "reloaded",
		"count":  s.store.Count(),
	})
}

// summarize flattens a profile to its list representation, with protocol
// blocks in precedence order.
func summarize(p *profile.Profile) profileSummary {
	sum := profileSummary{
		Name:  p.Name,
		Match: p.Match,
		Notes: p.Notes,
	}
	for _, proto := range profile.KnownProtocols {
		if _, ok := p.Protocols[proto]; ok {
			sum.Protocols = append(sum.Protocols, proto)
		}
	}
	return sum
}
