package storage

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mmynk/quozen/internal/calculator"
	"github.com/mmynk/quozen/internal/models"
)

// GetSettings returns user's settings, rebuilding them with ReconcileGroups
// when the settings document is missing, unversioned or unreadable.
func (s *Service) GetSettings(ctx context.Context, user models.User) (settings *models.UserSettings, err error) {
	ctx, end := begin(ctx, "GetSettings", attribute.String("user", user.Email))
	defer end(&err)

	settings, err = s.loadSettings(ctx, user)
	if err != nil {
		return nil, err
	}
	if settings != nil {
		return settings, nil
	}
	s.logger.Info("Settings missing or invalid, reconciling", "user", user.Email)
	return s.ReconcileGroups(ctx, user)
}

// SaveSettings overwrites user's settings document, creating it when missing.
// There is no merge: a concurrent save from another device is lost.
func (s *Service) SaveSettings(ctx context.Context, user models.User, settings *models.UserSettings) (err error) {
	ctx, end := begin(ctx, "SaveSettings", attribute.String("user", user.Email))
	defer end(&err)

	if cur := settings.Preferences.DefaultCurrency; cur != "" && !calculator.IsKnownCurrency(cur) {
		return Validation("SaveSettings", "unknown currency %q", cur)
	}
	if settings.Version == 0 {
		settings.Version = models.SettingsVersion
	}
	if settings.GroupCache == nil {
		settings.GroupCache = []models.CachedGroup{}
	}
	settings.LastUpdated = s.now()

	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	fileID, err := s.findSettingsFile(ctx, user)
	if err != nil {
		return err
	}
	if fileID != "" {
		err = s.adapter.WriteContent(ctx, fileID, data)
		if err == nil {
			return nil
		}
		if !IsNotFound(err) {
			return fmt.Errorf("failed to write settings: %w", err)
		}
		// Deleted underneath us; recreate.
		s.forgetSettingsFile(user)
	}

	fileID, err = s.adapter.CreateFile(ctx, CreateFileRequest{
		Name:       SettingsFileName,
		Owner:      user.Email,
		Properties: map[string]string{PropType: TypeSettings},
	})
	if err != nil {
		return fmt.Errorf("failed to create settings document: %w", err)
	}
	s.rememberSettingsFile(user, fileID)
	if err := s.adapter.WriteContent(ctx, fileID, data); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	s.logger.Info("Settings document created", "user", user.Email, "file_id", fileID)
	return nil
}

// UpdateActiveGroup points the user's active group at groupID and bumps its last access.
func (s *Service) UpdateActiveGroup(ctx context.Context, user models.User, groupID string) (err error) {
	ctx, end := begin(ctx, "UpdateActiveGroup", attribute.String("group_id", groupID))
	defer end(&err)

	var missing bool
	err = s.updateSettings(ctx, user, func(settings *models.UserSettings) bool {
		i := settings.FindGroup(groupID)
		if i < 0 {
			missing = true
			return false
		}
		settings.ActiveGroupID = groupID
		settings.GroupCache[i].LastAccessed = s.now()
		return true
	})
	if err != nil {
		return err
	}
	if missing {
		return NotFound("UpdateActiveGroup", "group %s is not in the directory", groupID)
	}
	return nil
}

// ReconcileGroups rebuilds user's group directory from a full scan of the
// group documents visible to them and overwrites their settings. Preferences
// and the active group survive when still valid. The scan is not incremental;
// on failure, call again.
func (s *Service) ReconcileGroups(ctx context.Context, user models.User) (settings *models.UserSettings, err error) {
	ctx, end := begin(ctx, "ReconcileGroups", attribute.String("user", user.Email))
	defer end(&err)

	files, err := s.adapter.ListFiles(ctx, ListFilter{
		Properties: map[string]string{PropType: TypeGroup},
		Principal:  user.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list group documents: %w", err)
	}
	slices.SortFunc(files, func(a, b FileInfo) int {
		if c := b.ModifiedTime.Compare(a.ModifiedTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	cache := make([]models.CachedGroup, 0, len(files))
	for _, f := range files {
		role := models.RoleMember
		if owns(f.Owners, user) || f.Capabilities.CanDelete {
			role = models.RoleOwner
		}
		cache = append(cache, models.CachedGroup{
			ID:           f.ID,
			Name:         groupDisplayName(f.Name),
			Role:         role,
			LastAccessed: f.ModifiedTime,
		})
	}

	existing, err := s.loadSettings(ctx, user)
	if err != nil {
		return nil, err
	}
	settings = &models.UserSettings{
		Version:    models.SettingsVersion,
		GroupCache: cache,
	}
	if existing != nil {
		settings.Preferences = existing.Preferences
		if settings.FindGroup(existing.ActiveGroupID) >= 0 {
			settings.ActiveGroupID = existing.ActiveGroupID
		}
	}
	if settings.ActiveGroupID == "" && len(cache) > 0 {
		settings.ActiveGroupID = cache[0].ID
	}

	if err := s.SaveSettings(ctx, user, settings); err != nil {
		return nil, err
	}
	s.logger.Info("Reconciled group directory", "user", user.Email, "groups", len(cache))
	return settings, nil
}

// updateSettings loads user's settings, applies fn and saves when fn reports a change.
func (s *Service) updateSettings(ctx context.Context, user models.User, fn func(*models.UserSettings) bool) error {
	settings, err := s.GetSettings(ctx, user)
	if err != nil {
		return err
	}
	if !fn(settings) {
		return nil
	}
	return s.SaveSettings(ctx, user, settings)
}

// loadSettings reads user's settings document. It returns nil settings, and
// no error, when the document is absent, unparseable or unversioned.
func (s *Service) loadSettings(ctx context.Context, user models.User) (*models.UserSettings, error) {
	fileID, err := s.findSettingsFile(ctx, user)
	if err != nil || fileID == "" {
		return nil, err
	}
	data, err := s.adapter.ReadContent(ctx, fileID)
	if IsNotFound(err) {
		s.forgetSettingsFile(user)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	var settings models.UserSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		s.logger.Warn("Settings document is not valid JSON", "user", user.Email, "file_id", fileID, "error", err)
		return nil, nil
	}
	if settings.Version == 0 {
		return nil, nil
	}
	if settings.GroupCache == nil {
		settings.GroupCache = []models.CachedGroup{}
	}
	return &settings, nil
}

// findSettingsFile locates user's settings document, returning "" when there is none.
//
// Two clients creating the document at the same time leave duplicates behind.
// The oldest (ties broken by ID) is kept and the rest are deleted. This may
// discard a newer write made concurrently on another device.
func (s *Service) findSettingsFile(ctx context.Context, user models.User) (string, error) {
	key := strings.ToLower(user.Email)
	s.mu.Lock()
	fileID, ok := s.settingsFiles[key]
	s.mu.Unlock()
	if ok {
		return fileID, nil
	}

	files, err := s.adapter.ListFiles(ctx, ListFilter{
		Name:      SettingsFileName,
		Principal: user.Email,
		OwnedOnly: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to list settings documents: %w", err)
	}
	if len(files) == 0 {
		return "", nil
	}

	slices.SortFunc(files, func(a, b FileInfo) int {
		if c := a.CreatedTime.Compare(b.CreatedTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	for _, dup := range files[1:] {
		if err := s.adapter.DeleteFile(ctx, dup.ID); err != nil {
			s.logger.Warn("Failed to delete duplicate settings document", "user", user.Email, "file_id", dup.ID, "error", err)
			continue
		}
		s.logger.Info("Deleted duplicate settings document", "user", user.Email, "file_id", dup.ID, "kept", files[0].ID)
	}

	s.rememberSettingsFile(user, files[0].ID)
	return files[0].ID, nil
}

func (s *Service) rememberSettingsFile(user models.User, fileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settingsFiles[strings.ToLower(user.Email)] = fileID
}

func (s *Service) forgetSettingsFile(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.settingsFiles, strings.ToLower(user.Email))
}

// scrubSettings removes groupID from every settings document the adapter can see.
func (s *Service) scrubSettings(ctx context.Context, groupID string) error {
	files, err := s.adapter.ListFiles(ctx, ListFilter{
		Name:       SettingsFileName,
		Properties: map[string]string{PropType: TypeSettings},
	})
	if err != nil {
		return fmt.Errorf("failed to list settings documents: %w", err)
	}

	var errs []error
	for _, f := range files {
		data, err := s.adapter.ReadContent(ctx, f.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to read settings %s: %w", f.ID, err))
			continue
		}
		var settings models.UserSettings
		if err := json.Unmarshal(data, &settings); err != nil {
			continue
		}
		if !settings.RemoveGroup(groupID) {
			continue
		}
		settings.LastUpdated = s.now()
		out, err := json.Marshal(&settings)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to encode settings %s: %w", f.ID, err))
			continue
		}
		if err := s.adapter.WriteContent(ctx, f.ID, out); err != nil {
			errs = append(errs, fmt.Errorf("failed to write settings %s: %w", f.ID, err))
		}
	}
	return errors.Join(errs...)
}
