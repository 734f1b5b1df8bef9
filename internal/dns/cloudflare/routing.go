package cloudflare

import (
	"context"
	"fmt"
	"net/http"

	"furrydomains/backend/internal/dns"
)

type routingMatcher struct {
	Field string `json:"field"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type routingAction struct {
	Type  string   `json:"type"`
	Value []string `json:"value"`
}

type routingRuleRequest struct {
	Name     string           `json:"name"`
	Enabled  bool             `json:"enabled"`
	Actions  []routingAction  `json:"actions"`
	Matchers []routingMatcher `json:"matchers"`
}

type routingRuleResult struct {
	ID      string `json:"id"`
	Tag     string `json:"tag"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type destinationResult struct {
	ID       string  `json:"id"`
	Tag      string  `json:"tag"`
	Email    string  `json:"email"`
	Verified *string `json:"verified"`
}

func (d destinationResult) toDestination() *dns.Destination {
	id := d.ID
	if id == "" {
		id = d.Tag
	}
	return &dns.Destination{
		ID:       id,
		Email:    d.Email,
		Verified: d.Verified != nil && *d.Verified != "",
	}
}

// CreateDestination 注册转发目标地址，Cloudflare 会向该地址发送验证邮件
func (c *Client) CreateDestination(ctx context.Context, email string) (*dns.Destination, error) {
	var result destinationResult
	path := fmt.Sprintf("/accounts/%s/email/routing/addresses", c.accountID)
	if err := c.do(ctx, "create_destination", http.MethodPost, path, nil, map[string]string{"email": email}, &result); err != nil {
		return nil, err
	}
	return result.toDestination(), nil
}

// GetDestination 查询目标地址的验证状态
func (c *Client) GetDestination(ctx context.Context, id string) (*dns.Destination, error) {
	var result destinationResult
	path := fmt.Sprintf("/accounts/%s/email/routing/addresses/%s", c.accountID, id)
	if err := c.do(ctx, "get_destination", http.MethodGet, path, nil, nil, &result); err != nil {
		return nil, err
	}
	return result.toDestination(), nil
}

// CreateRoutingRule 创建 from -> to 的转发规则
func (c *Client) CreateRoutingRule(ctx context.Context, zoneID, from, to string) (*dns.RoutingRule, error) {
	body := routingRuleRequest{
		Name:     fmt.Sprintf("Forward %s to %s", from, to),
		Enabled:  true,
		Actions:  []routingAction{{Type: "forward", Value: []string{to}}},
		Matchers: []routingMatcher{{Field: "to", Type: "literal", Value: from}},
	}

	var result routingRuleResult
	if err := c.do(ctx, "create_rule", http.MethodPost, fmt.Sprintf("/zones/%s/email/routing/rules", zoneID), nil, body, &result); err != nil {
		return nil, err
	}
	id := result.ID
	if id == "" {
		id = result.Tag
	}
	return &dns.RoutingRule{ID: id, Name: result.Name, Enabled: result.Enabled}, nil
}

// DeleteRoutingRule 删除转发规则
func (c *Client) DeleteRoutingRule(ctx context.Context, zoneID, ruleID string) error {
	return c.do(ctx, "delete_rule", http.MethodDelete, fmt.Sprintf("/zones/%s/email/routing/rules/%s", zoneID, ruleID), nil, nil, nil)
}

var (
	_ dns.Provider     = (*Client)(nil)
	_ dns.EmailRouting = (*Client)(nil)
)
