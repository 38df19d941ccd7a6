package services

import (
	"encoding/json"
	"fmt"
	"os"

	"ledger-service/internal/models"
	"ledger-service/pkg/common"
)

// HierarchyMember is one node on a user's ownership path as reported by the
// identity service, top of the hierarchy first.
type HierarchyMember struct {
	UserId   int         `json:"user_id"`
	RoleName string      `json:"role"`
	Level    int         `json:"level"`
	Role     models.Role `json:"-"`
}

// HierarchyProvider resolves the ownership path for a user. The identity
// service implements it in production; tests supply fakes.
type HierarchyProvider interface {
	GetOwnershipPath(userId int) ([]HierarchyMember, error)
}

// IdentityClient talks to the identity service over HTTP.
type IdentityClient struct {
	BaseUrl string
}

func NewIdentityClient() (*IdentityClient, error) {
	baseUrl := os.Getenv("IDENTITY_SERVICE_URL")
	if baseUrl == "" {
		baseUrl = "http://localhost:9090"
	}
	return &IdentityClient{BaseUrl: baseUrl}, nil
}

type ownershipPathResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    []HierarchyMember `json:"data"`
}

// GetOwnershipPath fetches the ordered ancestor list for a user, validating
// each external role name into the closed Role enum at this boundary.
func (c *IdentityClient) GetOwnershipPath(userId int) ([]HierarchyMember, error) {
	url := fmt.Sprintf("%s/internal/users/%d/ownership-path", c.BaseUrl, userId)
	raw, err := common.Get(url, nil)
	if err != nil {
		return nil, fmt.Errorf("identity service: %w", err)
	}

	body, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("identity service: %w", err)
	}
	var resp ownershipPathResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("identity service: unexpected response shape: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("identity service: %s", resp.Message)
	}

	for i := range resp.Data {
		role, err := models.ParseRole(resp.Data[i].RoleName)
		if err != nil {
			return nil, fmt.Errorf("identity service: user %d: %w", resp.Data[i].UserId, err)
		}
		resp.Data[i].Role = role
	}
	return resp.Data, nil
}
