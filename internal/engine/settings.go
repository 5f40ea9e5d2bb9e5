package engine

const (
	MaxRoundsToWin = 50
	maxWinnersCap  = 3
)

// SettingsPatch carries the fields of an update; nil fields are kept.
type SettingsPatch struct {
	RoundsToWin *int `json:"roundsToWin,omitempty"`
	MaxWinners  *int `json:"maxWinners,omitempty"`
}

// ClampSettings bounds requested values for a roster of the given size.
// Out-of-range values are clamped rather than rejected.
func ClampSettings(requested Settings, rosterSize int) Settings {
	out := boundRequest(requested)
	if rosterSize <= 2 {
		out.MaxWinners = min(out.MaxWinners, 1)
	} else {
		out.MaxWinners = min(out.MaxWinners, rosterSize-1)
	}
	return out
}

// UpdateSettings merges patch into the requested settings and re-clamps.
// Settings are frozen while a game is in progress.
func UpdateSettings(s *State, patch SettingsPatch) (Settings, error) {
	if s.InProgress() {
		return s.Settings, ErrInvalidSettings
	}
	if patch.RoundsToWin != nil {
		s.Requested.RoundsToWin = *patch.RoundsToWin
	}
	if patch.MaxWinners != nil {
		s.Requested.MaxWinners = *patch.MaxWinners
	}
	s.Requested = boundRequest(s.Requested)
	s.reclamp()
	return s.Settings, nil
}

func boundRequest(req Settings) Settings {
	req.RoundsToWin = min(max(req.RoundsToWin, 1), MaxRoundsToWin)
	req.MaxWinners = min(max(req.MaxWinners, 1), maxWinnersCap)
	return req
}
