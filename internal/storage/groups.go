package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mmynk/quozen/internal/models"
)

// CreateGroup creates a group document owned by owner, adds a row for each
// invitee and shares the document with every invitee that has an email.
// Invitees without a stable identity are addressed by email (or username for
// offline members) until they open the group.
func (s *Service) CreateGroup(ctx context.Context, owner models.User, name string, invitees []models.MemberInput) (group *models.Group, err error) {
	ctx, end := begin(ctx, "CreateGroup", attribute.String("name", name))
	defer end(&err)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Validation("CreateGroup", "group name is required")
	}
	ownerID := owner.ID
	if ownerID == "" {
		ownerID = owner.Email
	}

	now := s.now()
	members := []models.Member{{
		UserID:   ownerID,
		Email:    owner.Email,
		Name:     owner.Name,
		Role:     models.RoleOwner,
		JoinedAt: now,
	}}
	seen := map[string]bool{strings.ToLower(ownerID): true}
	if owner.Email != "" {
		seen[strings.ToLower(owner.Email)] = true
	}
	for _, in := range invitees {
		key := strings.TrimSpace(in.Key())
		if key == "" || seen[strings.ToLower(key)] {
			continue
		}
		seen[strings.ToLower(key)] = true
		members = append(members, models.Member{
			UserID:   key,
			Email:    in.Email,
			Name:     inviteeName(in),
			Role:     models.RoleMember,
			JoinedAt: now,
		})
	}

	fileID, err := s.adapter.CreateFile(ctx, CreateFileRequest{
		Name:  groupFileName(name),
		Owner: owner.Email,
		Tabs:  GroupTabs,
		Properties: map[string]string{
			PropType:    TypeGroup,
			PropVersion: SchemaVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create group document: %w", err)
	}
	s.logger.Info("Group document created", "group_id", fileID, "name", name, "owner", owner.Email)

	for i := 1; i < len(members); i++ {
		if members[i].Email == "" {
			continue
		}
		displayName, err := s.adapter.ShareFile(ctx, fileID, members[i].Email, "writer")
		if err != nil {
			s.discard(ctx, fileID)
			return nil, fmt.Errorf("failed to share group with %s: %w", members[i].Email, err)
		}
		if displayName != "" {
			members[i].Name = displayName
		}
	}

	memberRows := [][]string{MembersHeader}
	for _, m := range members {
		memberRows = append(memberRows, EncodeMember(m))
	}
	err = s.adapter.Initialize(ctx, fileID, map[string][][]string{
		TabExpenses:    {ExpensesHeader},
		TabSettlements: {SettlementsHeader},
		TabMembers:     memberRows,
	})
	if err != nil {
		s.discard(ctx, fileID)
		return nil, fmt.Errorf("failed to initialize group document: %w", err)
	}

	if err := s.updateSettings(ctx, owner, func(settings *models.UserSettings) bool {
		settings.PromoteGroup(models.CachedGroup{ID: fileID, Name: name, Role: models.RoleOwner, LastAccessed: now})
		return true
	}); err != nil {
		return nil, err
	}

	return &models.Group{
		ID:           fileID,
		Name:         name,
		Participants: participantIDs(members),
		IsOwner:      true,
	}, nil
}

// discard deletes a group document whose setup failed, so it is never
// discovered half-built. Failures are logged.
func (s *Service) discard(ctx context.Context, fileID string) {
	if err := s.adapter.DeleteFile(context.WithoutCancel(ctx), fileID); err != nil {
		s.logger.Warn("Failed to discard incomplete group document", "group_id", fileID, "error", err)
		return
	}
	s.logger.Info("Discarded incomplete group document", "group_id", fileID)
}

func inviteeName(in models.MemberInput) string {
	if in.Username != "" {
		return in.Username
	}
	if at := strings.Index(in.Email, "@"); at > 0 {
		return in.Email[:at]
	}
	return in.Email
}

// ImportGroup attaches an existing document to user's directory. The caller is
// added as a member if they are not one already, which requires that they own
// the document, were shared on it, or that it is publicly shared.
func (s *Service) ImportGroup(ctx context.Context, user models.User, fileID string) (group *models.Group, err error) {
	ctx, end := begin(ctx, "ImportGroup", attribute.String("group_id", fileID))
	defer end(&err)
	return s.attach(ctx, "ImportGroup", user, fileID, false)
}

// JoinGroup attaches a document the caller reached through a shared link.
// The caller must already have a member row (by identity or invitation email)
// or the document must be publicly shared.
func (s *Service) JoinGroup(ctx context.Context, user models.User, fileID string) (group *models.Group, err error) {
	ctx, end := begin(ctx, "JoinGroup", attribute.String("group_id", fileID))
	defer end(&err)
	return s.attach(ctx, "JoinGroup", user, fileID, true)
}

func (s *Service) attach(ctx context.Context, op string, user models.User, fileID string, requireAccess bool) (*models.Group, error) {
	meta, err := s.ValidateStructure(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if meta.Properties[PropType] != TypeGroup || meta.Properties[PropVersion] == "" {
		if err := s.adapter.AddProperties(ctx, fileID, map[string]string{
			PropType:    TypeGroup,
			PropVersion: SchemaVersion,
		}); err != nil {
			return nil, fmt.Errorf("failed to stamp group metadata: %w", err)
		}
		s.logger.Info("Stamped legacy group document", "group_id", fileID)
	}

	members, err := s.readMembers(ctx, fileID)
	if err != nil {
		return nil, err
	}

	idx := memberIndex(members, user)
	switch {
	case idx >= 0:
		if strings.EqualFold(members[idx].UserID, user.Email) && members[idx].UserID != user.ID && user.ID != "" {
			if err := s.migrateIdentity(ctx, op, fileID, user, members[idx]); err != nil {
				return nil, err
			}
			members[idx].UserID = user.ID
		}
	default:
		if err := s.checkAccess(ctx, op, user, fileID, meta, requireAccess); err != nil {
			return nil, err
		}
		// Reconcile discovers groups through ownership or shares.
		if user.Email != "" && !owns(meta.Owners, user) {
			if _, err := s.adapter.ShareFile(ctx, fileID, user.Email, "writer"); err != nil {
				return nil, fmt.Errorf("failed to share group with %s: %w", user.Email, err)
			}
		}
		m := models.Member{
			UserID:   user.ID,
			Email:    user.Email,
			Name:     user.Name,
			Role:     models.RoleMember,
			JoinedAt: s.now(),
		}
		pos, err := s.adapter.AppendRow(ctx, fileID, TabMembers, EncodeMember(m))
		if err != nil {
			return nil, fmt.Errorf("failed to add member: %w", err)
		}
		m.RowPosition = pos
		members = append(members, m)
		s.logger.Info("Member added on attach", "op", op, "group_id", fileID, "user_id", user.ID)
	}

	role := models.RoleMember
	if owns(meta.Owners, user) {
		role = models.RoleOwner
	}
	name := groupDisplayName(meta.Title)
	if err := s.updateSettings(ctx, user, func(settings *models.UserSettings) bool {
		settings.PromoteGroup(models.CachedGroup{ID: fileID, Name: name, Role: role, LastAccessed: s.now()})
		return true
	}); err != nil {
		return nil, err
	}

	return &models.Group{
		ID:           fileID,
		Name:         name,
		Participants: participantIDs(members),
		IsOwner:      role == models.RoleOwner,
	}, nil
}

// checkAccess decides whether a caller without a member row may add one.
// A public document admits anyone. Otherwise a link join is refused, and an
// import needs the caller to own the document or hold a share on it.
func (s *Service) checkAccess(ctx context.Context, op string, user models.User, fileID string, meta *FileMeta, linkJoin bool) error {
	access, err := s.adapter.GetPermissions(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to get permissions: %w", err)
	}
	if access == AccessPublic {
		return nil
	}
	if linkJoin {
		return Validation(op, "%s is not a member of this group", user.Email)
	}
	if owns(meta.Owners, user) {
		return nil
	}
	if user.Email != "" {
		files, err := s.adapter.ListFiles(ctx, ListFilter{Name: meta.Title, Principal: user.Email})
		if err != nil {
			return fmt.Errorf("failed to list shared documents: %w", err)
		}
		for _, f := range files {
			if f.ID == fileID {
				return nil
			}
		}
	}
	return Permission(op, "%s has no access to this document", user.Email)
}

// migrateIdentity rewrites a member row still addressed by email to the user's
// stable identity, and repoints every settlement and expense that referenced
// the email so balance history stays attributable.
func (s *Service) migrateIdentity(ctx context.Context, op, groupID string, user models.User, member models.Member) error {
	oldID := member.UserID
	if _, err := s.verifyRow(ctx, op, groupID, TabMembers, member.RowPosition, oldID); err != nil {
		return err
	}
	member.UserID = user.ID
	if user.Name != "" {
		member.Name = user.Name
	}
	if member.Email == "" {
		member.Email = user.Email
	}
	if err := s.adapter.UpdateRow(ctx, groupID, TabMembers, member.RowPosition, EncodeMember(member)); err != nil {
		return fmt.Errorf("failed to migrate member row: %w", err)
	}

	matches := func(id string) bool { return strings.EqualFold(id, oldID) }

	settlements, err := s.readSettlements(ctx, groupID)
	if err != nil {
		return err
	}
	migrated := 0
	for _, st := range settlements {
		if !matches(st.FromUserID) && !matches(st.ToUserID) {
			continue
		}
		if _, err := s.verifyRow(ctx, op, groupID, TabSettlements, st.RowPosition, st.ID); err != nil {
			return err
		}
		if matches(st.FromUserID) {
			st.FromUserID = user.ID
		}
		if matches(st.ToUserID) {
			st.ToUserID = user.ID
		}
		if err := s.adapter.UpdateRow(ctx, groupID, TabSettlements, st.RowPosition, EncodeSettlement(st)); err != nil {
			return fmt.Errorf("failed to migrate settlement %s: %w", st.ID, err)
		}
		migrated++
	}

	expenses, err := s.readExpenses(ctx, groupID)
	if err != nil {
		return err
	}
	for _, e := range expenses {
		changed := false
		if matches(e.PaidBy) {
			e.PaidBy = user.ID
			changed = true
		}
		for i := range e.Splits {
			if matches(e.Splits[i].UserID) {
				e.Splits[i].UserID = user.ID
				changed = true
			}
		}
		if !changed {
			continue
		}
		if _, err := s.verifyRow(ctx, op, groupID, TabExpenses, e.RowPosition, e.ID); err != nil {
			return err
		}
		e.Meta.LastModified = s.now()
		if err := s.adapter.UpdateRow(ctx, groupID, TabExpenses, e.RowPosition, EncodeExpense(e)); err != nil {
			return fmt.Errorf("failed to migrate expense %s: %w", e.ID, err)
		}
		migrated++
	}

	s.logger.Info("Migrated member identity",
		"group_id", groupID,
		"from", oldID,
		"to", user.ID,
		"rows_migrated", migrated,
	)
	return nil
}

// LeaveGroup removes user's member row and drops the group from their directory.
// The sole owner cannot leave, and neither can a member with attributable expenses.
func (s *Service) LeaveGroup(ctx context.Context, user models.User, groupID string) (err error) {
	ctx, end := begin(ctx, "LeaveGroup", attribute.String("group_id", groupID))
	defer end(&err)

	members, err := s.readMembers(ctx, groupID)
	if err != nil {
		return err
	}
	idx := memberIndex(members, user)
	if idx < 0 {
		return NotFound("LeaveGroup", "%s is not a member of this group", user.Email)
	}
	member := members[idx]

	if member.Role == models.RoleOwner {
		owners := 0
		for _, m := range members {
			if m.Role == models.RoleOwner {
				owners++
			}
		}
		if owners <= 1 {
			return Validation("LeaveGroup", "the sole owner cannot leave the group")
		}
	}

	has, err := s.hasExpenses(ctx, groupID, member.UserID)
	if err != nil {
		return err
	}
	if has {
		return Validation("LeaveGroup", "%s has expenses in this group", memberLabel(member))
	}

	if _, err := s.verifyRow(ctx, "LeaveGroup", groupID, TabMembers, member.RowPosition, member.UserID); err != nil {
		return err
	}
	if err := s.adapter.DeleteRow(ctx, groupID, TabMembers, member.RowPosition); err != nil {
		return fmt.Errorf("failed to delete member row: %w", err)
	}

	if err := s.updateSettings(ctx, user, func(settings *models.UserSettings) bool {
		return settings.RemoveGroup(groupID)
	}); err != nil {
		return err
	}

	s.logger.Info("Member left group", "group_id", groupID, "user_id", member.UserID)
	return nil
}

// UpdateGroup renames the group and reconciles its members with desired.
// Desired members match existing rows by email, then by username. Missing
// members are added and shared; members absent from desired are removed,
// except the owner, who is always kept. If any member to be removed has
// expenses, nothing is changed and a validation error names that member.
func (s *Service) UpdateGroup(ctx context.Context, actor models.User, groupID, name string, desired []models.MemberInput) (group *models.Group, err error) {
	ctx, end := begin(ctx, "UpdateGroup", attribute.String("group_id", groupID))
	defer end(&err)

	meta, err := s.adapter.GetFileMeta(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group metadata: %w", err)
	}
	members, err := s.readMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !owns(meta.Owners, actor) && !isOwnerMember(members, actor) {
		return nil, Permission("UpdateGroup", "only the owner can edit the group")
	}

	matched := make([]bool, len(members))
	var toAdd []models.MemberInput
	seen := make(map[string]bool)
	for _, in := range desired {
		key := strings.ToLower(strings.TrimSpace(in.Key()))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if j := matchMember(members, in); j >= 0 {
			matched[j] = true
			continue
		}
		toAdd = append(toAdd, in)
	}

	var toRemove []models.Member
	for j, m := range members {
		if matched[j] || m.Role == models.RoleOwner {
			continue
		}
		toRemove = append(toRemove, m)
	}
	for _, m := range toRemove {
		has, err := s.hasExpenses(ctx, groupID, m.UserID)
		if err != nil {
			return nil, err
		}
		if has {
			return nil, Validation("UpdateGroup", "cannot remove %s: member has expenses", memberLabel(m))
		}
	}

	currentName := groupDisplayName(meta.Title)
	name = strings.TrimSpace(name)
	if name != "" && name != currentName {
		if err := s.adapter.RenameFile(ctx, groupID, groupFileName(name)); err != nil {
			return nil, fmt.Errorf("failed to rename group: %w", err)
		}
		currentName = name
	}

	for _, in := range toAdd {
		m := models.Member{
			UserID:   strings.TrimSpace(in.Key()),
			Email:    in.Email,
			Name:     inviteeName(in),
			Role:     models.RoleMember,
			JoinedAt: s.now(),
		}
		if m.Email != "" {
			displayName, err := s.adapter.ShareFile(ctx, groupID, m.Email, "writer")
			if err != nil {
				return nil, fmt.Errorf("failed to share group with %s: %w", m.Email, err)
			}
			if displayName != "" {
				m.Name = displayName
			}
		}
		if _, err := s.adapter.AppendRow(ctx, groupID, TabMembers, EncodeMember(m)); err != nil {
			return nil, fmt.Errorf("failed to add member %s: %w", m.UserID, err)
		}
	}

	// Delete bottom-up so earlier positions stay valid.
	slices.SortFunc(toRemove, func(a, b models.Member) int { return b.RowPosition - a.RowPosition })
	for _, m := range toRemove {
		if _, err := s.verifyRow(ctx, "UpdateGroup", groupID, TabMembers, m.RowPosition, m.UserID); err != nil {
			return nil, err
		}
		if err := s.adapter.DeleteRow(ctx, groupID, TabMembers, m.RowPosition); err != nil {
			return nil, fmt.Errorf("failed to remove member %s: %w", m.UserID, err)
		}
	}

	if err := s.updateSettings(ctx, actor, func(settings *models.UserSettings) bool {
		i := settings.FindGroup(groupID)
		if i < 0 || settings.GroupCache[i].Name == currentName {
			return false
		}
		settings.GroupCache[i].Name = currentName
		return true
	}); err != nil {
		return nil, err
	}

	updated, err := s.readMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Group updated",
		"group_id", groupID,
		"added", len(toAdd),
		"removed", len(toRemove),
	)
	return &models.Group{
		ID:           groupID,
		Name:         currentName,
		Participants: participantIDs(updated),
		IsOwner:      true,
	}, nil
}

// matchMember finds the existing member for in: by email first, then by username.
func matchMember(members []models.Member, in models.MemberInput) int {
	if in.Email != "" {
		for j, m := range members {
			if strings.EqualFold(m.Email, in.Email) || strings.EqualFold(m.UserID, in.Email) {
				return j
			}
		}
	}
	if in.Username != "" {
		for j, m := range members {
			if strings.EqualFold(m.Name, in.Username) || m.UserID == in.Username {
				return j
			}
		}
	}
	return -1
}

// DeleteGroup deletes the group document and scrubs it from every settings
// directory that references it. Only an owner may delete.
func (s *Service) DeleteGroup(ctx context.Context, user models.User, groupID string) (err error) {
	ctx, end := begin(ctx, "DeleteGroup", attribute.String("group_id", groupID))
	defer end(&err)

	meta, err := s.adapter.GetFileMeta(ctx, groupID)
	if err != nil {
		return fmt.Errorf("failed to get group metadata: %w", err)
	}
	if !owns(meta.Owners, user) {
		return Permission("DeleteGroup", "only the owner can delete the group")
	}
	if err := s.adapter.DeleteFile(ctx, groupID); err != nil {
		return fmt.Errorf("failed to delete group document: %w", err)
	}
	s.logger.Info("Group deleted", "group_id", groupID, "user", user.Email)

	return s.scrubSettings(ctx, groupID)
}

// CheckMemberHasExpenses reports whether memberID paid for, or holds a nonzero
// share of, any expense in the group. The actor must be a member.
func (s *Service) CheckMemberHasExpenses(ctx context.Context, actor models.User, groupID, memberID string) (has bool, err error) {
	ctx, end := begin(ctx, "CheckMemberHasExpenses", attribute.String("group_id", groupID))
	defer end(&err)

	if _, err := s.requireMember(ctx, "CheckMemberHasExpenses", actor, groupID); err != nil {
		return false, err
	}
	return s.hasExpenses(ctx, groupID, memberID)
}

func (s *Service) hasExpenses(ctx context.Context, groupID, memberID string) (bool, error) {
	expenses, err := s.readExpenses(ctx, groupID)
	if err != nil {
		return false, err
	}
	for _, e := range expenses {
		if e.Involves(memberID) {
			return true, nil
		}
	}
	return false, nil
}

// ValidateStructure checks that fileID is a group document with every required tab.
func (s *Service) ValidateStructure(ctx context.Context, fileID string) (meta *FileMeta, err error) {
	ctx, end := begin(ctx, "ValidateStructure", attribute.String("group_id", fileID))
	defer end(&err)

	meta, err = s.adapter.GetFileMeta(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file metadata: %w", err)
	}
	var missing []string
	for _, tab := range GroupTabs {
		if !slices.Contains(meta.Tabs, tab) {
			missing = append(missing, tab)
		}
	}
	if len(missing) > 0 {
		return nil, Validation("ValidateStructure", "document is missing tabs: %s", strings.Join(missing, ", "))
	}
	return meta, nil
}

// GetGroupData reads a group's members, expenses and settlements. Only members
// and owners of the document may read it. Row positions in the result are
// valid only until the next mutation.
func (s *Service) GetGroupData(ctx context.Context, user models.User, groupID string) (data *models.GroupData, err error) {
	ctx, end := begin(ctx, "GetGroupData", attribute.String("group_id", groupID))
	defer end(&err)

	meta, err := s.adapter.GetFileMeta(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group metadata: %w", err)
	}
	members, err := s.readMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if memberIndex(members, user) < 0 && !owns(meta.Owners, user) {
		return nil, Permission("GetGroupData", "%s is not a member of this group", user.Email)
	}
	expenses, err := s.readExpenses(ctx, groupID)
	if err != nil {
		return nil, err
	}
	settlements, err := s.readSettlements(ctx, groupID)
	if err != nil {
		return nil, err
	}

	return &models.GroupData{
		Group: models.Group{
			ID:           groupID,
			Name:         groupDisplayName(meta.Title),
			Participants: participantIDs(members),
			IsOwner:      owns(meta.Owners, user) || isOwnerMember(members, user),
		},
		Members:     members,
		Expenses:    expenses,
		Settlements: settlements,
	}, nil
}

func owns(owners []string, user models.User) bool {
	for _, o := range owners {
		if o == user.ID || (user.Email != "" && strings.EqualFold(o, user.Email)) {
			return true
		}
	}
	return false
}

func isOwnerMember(members []models.Member, user models.User) bool {
	idx := memberIndex(members, user)
	return idx >= 0 && members[idx].Role == models.RoleOwner
}

func memberLabel(m models.Member) string {
	if m.Name != "" {
		return m.Name
	}
	return m.UserID
}
