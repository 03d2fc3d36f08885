package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/backend/internal/models"
)

func TestMembershipService_List(t *testing.T) {
	f := newFixture(t)
	svc := NewMembershipService(f.db)

	members, err := svc.List(context.Background(), f.member.ID, f.project.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, models.RoleOwner, members[0].Role)
	require.NotNil(t, members[1].User)
	assert.Equal(t, "member@example.com", members[1].User.Email)

	_, err = svc.List(context.Background(), f.outsider.ID, f.project.ID)
	requireStatus(t, err, http.StatusForbidden)
}

func TestMembershipService_Invite(t *testing.T) {
	f := newFixture(t)
	svc := NewMembershipService(f.db)
	ctx := context.Background()

	m, err := svc.Invite(ctx, f.owner.ID, f.project.ID, &InviteMemberRequest{Email: " Outsider@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, m.Role)
	assert.Equal(t, f.outsider.ID, m.UserID)
	require.NotNil(t, m.User)

	tests := []struct {
		name   string
		actor  string
		email  string
		status int
	}{
		{"already a member", f.owner.ID, "member@example.com", http.StatusConflict},
		{"unknown email", f.owner.ID, "ghost@example.com", http.StatusNotFound},
		{"self invite", f.owner.ID, "owner@example.com", http.StatusBadRequest},
		{"empty email", f.owner.ID, "", http.StatusBadRequest},
		{"member cannot invite", f.member.ID, "ghost@example.com", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Invite(ctx, tt.actor, f.project.ID, &InviteMemberRequest{Email: tt.email})
			requireStatus(t, err, tt.status)
		})
	}
}

func TestMembershipService_RemoveRules(t *testing.T) {
	f := newFixture(t)
	svc := NewMembershipService(f.db)
	ctx := context.Background()

	third := createUser(t, f.db, "third@example.com")
	thirdMembership := &models.Membership{ProjectID: f.project.ID, UserID: third.ID, Role: models.RoleMember}
	require.NoError(t, f.db.Create(thirdMembership).Error)

	err := svc.Remove(ctx, f.owner.ID, f.project.ID, f.ownerMembership.ID)
	requireStatus(t, err, http.StatusBadRequest)

	err = svc.Remove(ctx, f.member.ID, f.project.ID, f.ownerMembership.ID)
	requireStatus(t, err, http.StatusForbidden)

	err = svc.Remove(ctx, f.member.ID, f.project.ID, thirdMembership.ID)
	requireStatus(t, err, http.StatusForbidden)

	err = svc.Remove(ctx, f.outsider.ID, f.project.ID, thirdMembership.ID)
	requireStatus(t, err, http.StatusForbidden)

	err = svc.Remove(ctx, f.owner.ID, f.project.ID, "missing")
	requireStatus(t, err, http.StatusNotFound)

	require.NoError(t, svc.Remove(ctx, f.member.ID, f.project.ID, f.memberMembership.ID), "members may leave")
	require.NoError(t, svc.Remove(ctx, f.owner.ID, f.project.ID, thirdMembership.ID), "the owner may remove others")

	var n int64
	require.NoError(t, f.db.Model(&models.Membership{}).Where("project_id = ?", f.project.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestMembershipService_RemoveUnassignsTasks(t *testing.T) {
	f := newFixture(t)
	svc := NewMembershipService(f.db)
	tasks := NewTaskService(f.db, nil)
	ctx := context.Background()

	task, err := tasks.Create(ctx, f.owner.ID, f.project.ID, CreateTaskRequest{Title: "A", AssigneeID: &f.memberMembership.ID})
	require.NoError(t, err)
	require.NotNil(t, task.AssigneeID)

	require.NoError(t, svc.Remove(ctx, f.owner.ID, f.project.ID, f.memberMembership.ID))

	var reloaded models.Task
	require.NoError(t, f.db.Where("id = ?", task.ID).First(&reloaded).Error)
	assert.Nil(t, reloaded.AssigneeID)
	assert.Equal(t, 0, reloaded.Order)
}
