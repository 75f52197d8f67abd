package mcp

import (
	"context"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/grovekit/grove/internal/domain/activity"
	"github.com/grovekit/grove/internal/domain/grant"
	"github.com/grovekit/grove/internal/domain/invitation"
)

// GrantResponse is the wire shape of a grant.
type GrantResponse struct {
	TreeID      string          `json:"tree_id"`
	PrincipalID string          `json:"principal_id"`
	Role        string          `json:"role"`
	Permissions map[string]bool `json:"permissions"`
	GrantedBy   string          `json:"granted_by"`
	GrantedAt   time.Time       `json:"granted_at"`
}

func toGrantResponse(g *grant.Grant) GrantResponse {
	perms := make(map[string]bool, len(g.Permissions))
	for cap, held := range g.Effective() {
		perms[string(cap)] = held
	}
	return GrantResponse{
		TreeID:      g.TreeID,
		PrincipalID: g.PrincipalID,
		Role:        string(g.Role),
		Permissions: perms,
		GrantedBy:   g.GrantedBy,
		GrantedAt:   g.GrantedAt,
	}
}

// InvitationResponse is the wire shape of an invitation.
type InvitationResponse struct {
	ID        string    `json:"id"`
	TreeID    string    `json:"tree_id"`
	InviterID string    `json:"inviter_id"`
	InviteeID string    `json:"invitee_id"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Message   string    `json:"message,omitempty"`
}

func toInvitationResponse(inv *invitation.Invitation) InvitationResponse {
	return InvitationResponse{
		ID:        inv.ID,
		TreeID:    inv.TreeID,
		InviterID: inv.InviterID,
		InviteeID: inv.InviteeID,
		Role:      string(inv.Role),
		Status:    string(inv.Status),
		CreatedAt: inv.CreatedAt,
		ExpiresAt: inv.ExpiresAt,
		Message:   inv.Message,
	}
}

type CheckPermissionInput struct {
	TreeID      string `json:"tree_id"`
	PrincipalID string `json:"principal_id"`
	Capability  string `json:"capability"`
}

type CheckPermissionOutput struct {
	Allowed bool `json:"allowed"`
}

type GrantPermissionInput struct {
	GranterID   string          `json:"granter_id"`
	TreeID      string          `json:"tree_id"`
	GranteeID   string          `json:"grantee_id"`
	Role        string          `json:"role"`
	Permissions map[string]bool `json:"permissions,omitempty"`
}

type RevokePermissionInput struct {
	RevokerID string `json:"revoker_id"`
	TreeID    string `json:"tree_id"`
	TargetID  string `json:"target_id"`
}

type TransferOwnershipInput struct {
	CurrentOwnerID string `json:"current_owner_id"`
	TreeID         string `json:"tree_id"`
	NewOwnerID     string `json:"new_owner_id"`
}

type SeedTreeOwnerInput struct {
	TreeID  string `json:"tree_id"`
	OwnerID string `json:"owner_id"`
}

type ListGrantsInput struct {
	CallerID string `json:"caller_id"`
	TreeID   string `json:"tree_id"`
}

type ListGrantsOutput struct {
	Grants []GrantResponse `json:"grants"`
}

type CreateInvitationInput struct {
	InviterID string `json:"inviter_id"`
	TreeID    string `json:"tree_id"`
	InviteeID string `json:"invitee_id"`
	Role      string `json:"role"`
	TTL       string `json:"ttl,omitempty"` // Go duration, e.g. "24h"
	Message   string `json:"message,omitempty"`
}

type ResolveInvitationInput struct {
	InvitationID string `json:"invitation_id"`
	PrincipalID  string `json:"principal_id"`
}

type ResolvedOutput struct {
	Resolved bool `json:"resolved"`
}

type ListInvitationsInput struct {
	CallerID string `json:"caller_id"`
	TreeID   string `json:"tree_id"`
}

type ListInvitationsOutput struct {
	Invitations []InvitationResponse `json:"invitations"`
}

type SweepExpiredOutput struct {
	Expired int `json:"expired"`
}

type ListActivityInput struct {
	TreeID string `json:"tree_id"`
	From   string `json:"from,omitempty"` // RFC 3339
	To     string `json:"to,omitempty"`   // RFC 3339
	Limit  int    `json:"limit,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

type ActivityEntryResponse struct {
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ListActivityOutput struct {
	Entries []ActivityEntryResponse `json:"entries"`
	Cursor  string                  `json:"cursor,omitempty"`
}

// defaultInvitationTTL applies when create_invitation omits the ttl argument.
const defaultInvitationTTL = 7 * 24 * time.Hour

func registerTools(server *sdkmcp.Server, svc Services) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "check_permission",
		Description: "Check whether a principal holds a capability on a tree",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in CheckPermissionInput) (*sdkmcp.CallToolResult, CheckPermissionOutput, error) {
		allowed, err := svc.Permissions.Check(ctx, in.TreeID, in.PrincipalID, grant.Capability(in.Capability))
		if err != nil {
			return nil, CheckPermissionOutput{}, mapErr(err)
		}
		return nil, CheckPermissionOutput{Allowed: allowed}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "grant_permission",
		Description: "Create or replace a principal's grant on a tree",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in GrantPermissionInput) (*sdkmcp.CallToolResult, GrantResponse, error) {
		var custom grant.PermissionSet
		if in.Permissions != nil {
			custom = make(grant.PermissionSet, len(in.Permissions))
			for cap, held := range in.Permissions {
				custom[grant.Capability(cap)] = held
			}
		}
		g, err := svc.Permissions.Grant(ctx, in.GranterID, in.TreeID, in.GranteeID, grant.Role(in.Role), custom)
		if err != nil {
			return nil, GrantResponse{}, mapErr(err)
		}
		return nil, toGrantResponse(g), nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "revoke_permission",
		Description: "Revoke a principal's grant on a tree",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in RevokePermissionInput) (*sdkmcp.CallToolResult, ResolvedOutput, error) {
		revoked, err := svc.Permissions.Revoke(ctx, in.RevokerID, in.TreeID, in.TargetID)
		if err != nil {
			return nil, ResolvedOutput{}, mapErr(err)
		}
		return nil, ResolvedOutput{Resolved: revoked}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "transfer_ownership",
		Description: "Transfer tree ownership to another principal, demoting the current owner to admin",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in TransferOwnershipInput) (*sdkmcp.CallToolResult, ResolvedOutput, error) {
		done, err := svc.Permissions.TransferOwnership(ctx, in.CurrentOwnerID, in.TreeID, in.NewOwnerID)
		if err != nil {
			return nil, ResolvedOutput{}, mapErr(err)
		}
		return nil, ResolvedOutput{Resolved: done}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "seed_tree_owner",
		Description: "Create the initial owner grant for a newly created tree",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in SeedTreeOwnerInput) (*sdkmcp.CallToolResult, GrantResponse, error) {
		g, err := svc.Permissions.SeedOwner(ctx, in.TreeID, in.OwnerID)
		if err != nil {
			return nil, GrantResponse{}, mapErr(err)
		}
		return nil, toGrantResponse(g), nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_grants",
		Description: "List every grant on a tree",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in ListGrantsInput) (*sdkmcp.CallToolResult, ListGrantsOutput, error) {
		grants, err := svc.Permissions.ListGrants(ctx, in.CallerID, in.TreeID)
		if err != nil {
			return nil, ListGrantsOutput{}, mapErr(err)
		}
		out := ListGrantsOutput{Grants: make([]GrantResponse, 0, len(grants))}
		for i := range grants {
			out.Grants = append(out.Grants, toGrantResponse(&grants[i]))
		}
		return nil, out, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "create_invitation",
		Description: "Invite a principal to a tree with a proposed role",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in CreateInvitationInput) (*sdkmcp.CallToolResult, InvitationResponse, error) {
		ttl := defaultInvitationTTL
		if in.TTL != "" {
			parsed, err := time.ParseDuration(in.TTL)
			if err != nil {
				return nil, InvitationResponse{}, &APIError{Code: "INVALID_INPUT", Message: "invalid ttl"}
			}
			ttl = parsed
		}
		inv, err := svc.Invitations.Create(ctx, in.InviterID, invitation.CreateRequest{
			TreeID:    in.TreeID,
			InviteeID: in.InviteeID,
			Role:      grant.Role(in.Role),
			TTL:       ttl,
			Message:   in.Message,
		})
		if err != nil {
			return nil, InvitationResponse{}, mapErr(err)
		}
		return nil, toInvitationResponse(inv), nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "accept_invitation",
		Description: "Accept a pending invitation, materializing the offered grant",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in ResolveInvitationInput) (*sdkmcp.CallToolResult, GrantResponse, error) {
		g, err := svc.Invitations.Accept(ctx, in.InvitationID, in.PrincipalID)
		if err != nil {
			return nil, GrantResponse{}, mapErr(err)
		}
		return nil, toGrantResponse(g), nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "decline_invitation",
		Description: "Decline a pending invitation",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in ResolveInvitationInput) (*sdkmcp.CallToolResult, ResolvedOutput, error) {
		done, err := svc.Invitations.Decline(ctx, in.InvitationID, in.PrincipalID)
		if err != nil {
			return nil, ResolvedOutput{}, mapErr(err)
		}
		return nil, ResolvedOutput{Resolved: done}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "revoke_invitation",
		Description: "Withdraw a pending invitation",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in ResolveInvitationInput) (*sdkmcp.CallToolResult, ResolvedOutput, error) {
		done, err := svc.Invitations.Revoke(ctx, in.InvitationID, in.PrincipalID)
		if err != nil {
			return nil, ResolvedOutput{}, mapErr(err)
		}
		return nil, ResolvedOutput{Resolved: done}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_invitations",
		Description: "List a tree's invitations",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in ListInvitationsInput) (*sdkmcp.CallToolResult, ListInvitationsOutput, error) {
		invs, err := svc.Invitations.ListForTree(ctx, in.CallerID, in.TreeID)
		if err != nil {
			return nil, ListInvitationsOutput{}, mapErr(err)
		}
		out := ListInvitationsOutput{Invitations: make([]InvitationResponse, 0, len(invs))}
		for i := range invs {
			out.Invitations = append(out.Invitations, toInvitationResponse(&invs[i]))
		}
		return nil, out, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "sweep_expired_invitations",
		Description: "Expire every pending invitation past its TTL",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in struct{}) (*sdkmcp.CallToolResult, SweepExpiredOutput, error) {
		n, err := svc.Invitations.SweepExpired(ctx)
		if err != nil {
			return nil, SweepExpiredOutput{}, mapErr(err)
		}
		return nil, SweepExpiredOutput{Expired: n}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_activity",
		Description: "List a tree's audit trail, ascending by time, with a continuation cursor",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in ListActivityInput) (*sdkmcp.CallToolResult, ListActivityOutput, error) {
		opts := activity.ListOptions{Limit: in.Limit, Cursor: in.Cursor}
		if in.From != "" {
			from, err := time.Parse(time.RFC3339, in.From)
			if err != nil {
				return nil, ListActivityOutput{}, &APIError{Code: "INVALID_INPUT", Message: "invalid from timestamp"}
			}
			opts.From = from
		}
		if in.To != "" {
			to, err := time.Parse(time.RFC3339, in.To)
			if err != nil {
				return nil, ListActivityOutput{}, &APIError{Code: "INVALID_INPUT", Message: "invalid to timestamp"}
			}
			opts.To = to
		}

		entries, cursor, err := svc.Activity.List(ctx, in.TreeID, opts)
		if err != nil {
			return nil, ListActivityOutput{}, mapErr(err)
		}
		out := ListActivityOutput{Cursor: cursor, Entries: make([]ActivityEntryResponse, 0, len(entries))}
		for _, entry := range entries {
			out.Entries = append(out.Entries, ActivityEntryResponse{
				ActorID:   entry.ActorID,
				Action:    string(entry.Action),
				Details:   entry.Details,
				CreatedAt: entry.CreatedAt,
			})
		}
		return nil, out, nil
	})
}
