package models

import "time"

// SettingsVersion is the current schema version of UserSettings.
// A settings document without a version is treated as missing.
const SettingsVersion = 1

// UserSettings is a user's directory of known groups and preferences.
// It is always written wholesale; concurrent writers race and the last write wins.
type UserSettings struct {
	Version       int           `json:"version"`
	ActiveGroupID string        `json:"activeGroupId"`
	GroupCache    []CachedGroup `json:"groupCache"`
	Preferences   Preferences   `json:"preferences"`
	LastUpdated   time.Time     `json:"lastUpdated"`
}

// CachedGroup is a directory entry for a group the user belongs to.
type CachedGroup struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	LastAccessed time.Time `json:"lastAccessed"`
}

// Preferences holds user-level display preferences.
type Preferences struct {
	DefaultCurrency string `json:"defaultCurrency,omitempty"`
	Theme           string `json:"theme,omitempty"`
}

// FindGroup returns the index of the cached group with the given ID, or -1.
func (s *UserSettings) FindGroup(groupID string) int {
	for i, g := range s.GroupCache {
		if g.ID == groupID {
			return i
		}
	}
	return -1
}

// PromoteGroup moves (or inserts) entry to the head of the cache and makes it active.
func (s *UserSettings) PromoteGroup(entry CachedGroup) {
	if i := s.FindGroup(entry.ID); i >= 0 {
		s.GroupCache = append(s.GroupCache[:i], s.GroupCache[i+1:]...)
	}
	s.GroupCache = append([]CachedGroup{entry}, s.GroupCache...)
	s.ActiveGroupID = entry.ID
}

// RemoveGroup drops groupID from the cache, clearing the active group if it
// pointed there. It reports whether anything changed.
func (s *UserSettings) RemoveGroup(groupID string) bool {
	i := s.FindGroup(groupID)
	if i < 0 && s.ActiveGroupID != groupID {
		return false
	}
	if i >= 0 {
		s.GroupCache = append(s.GroupCache[:i], s.GroupCache[i+1:]...)
	}
	if s.ActiveGroupID == groupID {
		s.ActiveGroupID = ""
		if len(s.GroupCache) > 0 {
			s.ActiveGroupID = s.GroupCache[0].ID
		}
	}
	return true
}
