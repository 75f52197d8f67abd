// Package mcp exposes the access-control core as MCP tools. Bot handlers and
// other interaction layers sit on the far side of this surface; nothing here
// leaks storage-layer details to them.
package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/grovekit/grove/internal/domain/activity"
	"github.com/grovekit/grove/internal/domain/grant"
	"github.com/grovekit/grove/internal/domain/invitation"
)

// PermissionService defines grant operations needed by the tool surface.
type PermissionService interface {
	Check(ctx context.Context, treeID, principalID string, cap grant.Capability) (bool, error)
	Grant(ctx context.Context, granterID, treeID, granteeID string, role grant.Role, custom grant.PermissionSet) (*grant.Grant, error)
	Revoke(ctx context.Context, revokerID, treeID, targetID string) (bool, error)
	TransferOwnership(ctx context.Context, currentOwnerID, treeID, newOwnerID string) (bool, error)
	SeedOwner(ctx context.Context, treeID, ownerID string) (*grant.Grant, error)
	ListGrants(ctx context.Context, callerID, treeID string) ([]grant.Grant, error)
}

// InvitationService defines invitation operations needed by the tool surface.
type InvitationService interface {
	Create(ctx context.Context, inviterID string, req invitation.CreateRequest) (*invitation.Invitation, error)
	Accept(ctx context.Context, invitationID, actingID string) (*grant.Grant, error)
	Decline(ctx context.Context, invitationID, actingID string) (bool, error)
	Revoke(ctx context.Context, invitationID, revokerID string) (bool, error)
	SweepExpired(ctx context.Context) (int, error)
	ListForTree(ctx context.Context, callerID, treeID string) ([]invitation.Invitation, error)
}

// ActivityService defines audit operations needed by the tool surface.
type ActivityService interface {
	List(ctx context.Context, treeID string, opts activity.ListOptions) ([]activity.Entry, string, error)
}

// Services contains the domain services behind the tool surface.
type Services struct {
	Permissions PermissionService
	Invitations InvitationService
	Activity    ActivityService
}

// Config contains server configuration.
type Config struct {
	Services Services
	Logger   *slog.Logger
}

// NewServer creates an MCP server with every core operation registered as a
// tool.
func NewServer(cfg Config) *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "grove",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerTools(server, cfg.Services)

	return server
}

const serverInstructions = `Grove manages access to shared family trees: grants,
invitations, and an audit trail. Check permissions before mutating tree data,
invite principals with create_invitation, and resolve invitations with
accept_invitation or decline_invitation.`
