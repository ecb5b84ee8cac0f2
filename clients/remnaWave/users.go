package remnawave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	promoname "github.com/Asort97/promoBot/clients/promoName"
)

const StatusActive = "ACTIVE"

// Account is a promo subscription as the panel reports it.
type Account struct {
	UUID              string
	ShortUUID         string
	Username          string
	Tag               string
	Status            string
	UsedTrafficBytes  int64
	TrafficLimitBytes int64
	SubscriptionURL   string
}

// Used reports whether the account consumed any traffic or is not active.
// An empty status is treated as active.
func (a Account) Used() bool {
	if a.UsedTrafficBytes > 0 {
		return true
	}
	return a.Status != "" && !strings.EqualFold(a.Status, StatusActive)
}

// byteCount accepts both JSON numbers and numeric strings.
type byteCount int64

func (b *byteCount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		*b = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*b = byteCount(n)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("byte count %q: %w", s, err)
	}
	*b = byteCount(f)
	return nil
}

type userDTO struct {
	UUID              string    `json:"uuid"`
	ShortUUID         string    `json:"shortUuid"`
	ShortUUIDSnake    string    `json:"short_uuid"`
	Username          string    `json:"username"`
	Status            string    `json:"status"`
	UsedTrafficBytes  byteCount `json:"usedTrafficBytes"`
	TrafficLimitBytes byteCount `json:"trafficLimitBytes"`
	UserTraffic       *struct {
		UsedTrafficBytes byteCount `json:"usedTrafficBytes"`
	} `json:"userTraffic"`

	SubscriptionURL      string `json:"subscriptionUrl"`
	SubscriptionURLSnake string `json:"subscription_url"`
	SubURL               string `json:"sub_url"`
	Link                 string `json:"link"`
	ConfigURL            string `json:"config_url"`
}

func (d userDTO) link() string {
	for _, candidate := range []string{d.SubscriptionURL, d.SubscriptionURLSnake, d.SubURL, d.Link, d.ConfigURL} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return candidate
		}
	}
	return ""
}

func (d userDTO) account(prefix string) Account {
	acc := Account{
		UUID:              d.UUID,
		ShortUUID:         d.ShortUUID,
		Username:          d.Username,
		Status:            strings.ToUpper(d.Status),
		UsedTrafficBytes:  int64(d.UsedTrafficBytes),
		TrafficLimitBytes: int64(d.TrafficLimitBytes),
		SubscriptionURL:   d.link(),
	}
	if acc.ShortUUID == "" {
		acc.ShortUUID = d.ShortUUIDSnake
	}
	if d.UserTraffic != nil && acc.UsedTrafficBytes == 0 {
		acc.UsedTrafficBytes = int64(d.UserTraffic.UsedTrafficBytes)
	}
	if tag, ok := promoname.Decode(prefix, d.Username); ok {
		acc.Tag = tag
	}
	return acc
}

type usersPage struct {
	Users []userDTO `json:"users"`
	Total int       `json:"total"`
}

func (p *usersPage) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		p.Total = 0
		return json.Unmarshal(trimmed, &p.Users)
	}
	type plain usersPage
	var v plain
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	*p = usersPage(v)
	return nil
}

func (c *Client) listPage(ctx context.Context, start, size int) (usersPage, error) {
	query := url.Values{}
	query.Set("start", strconv.Itoa(start))
	query.Set("size", strconv.Itoa(size))

	var page usersPage
	if err := c.do(ctx, "list", http.MethodGet, "/api/users?"+query.Encode(), nil, &page); err != nil {
		return usersPage{}, err
	}
	return page, nil
}

// Accounts lazily walks the panel's user list page by page and yields only promo
// accounts. The sequence is a one-shot snapshot; iterate again for fresh data.
func (c *Client) Accounts(ctx context.Context) iter.Seq2[Account, error] {
	return func(yield func(Account, error) bool) {
		seen := make(map[string]struct{})
		start := 0
		for {
			page, err := c.listPage(ctx, start, c.pageSize)
			if err != nil {
				yield(Account{}, err)
				return
			}

			fresh := 0
			for _, dto := range page.Users {
				key := dto.UUID
				if key == "" {
					key = dto.Username
				}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				fresh++

				acc := dto.account(c.prefix)
				if acc.Tag == "" {
					continue
				}
				if !yield(acc, nil) {
					return
				}
			}

			start += len(page.Users)
			switch {
			case len(page.Users) == 0 || fresh == 0:
				return
			case page.Total > 0 && start >= page.Total:
				return
			case page.Total == 0 && len(page.Users) < c.pageSize:
				return
			}
		}
	}
}

// ListAccounts returns every promo account currently on the panel.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	for acc, err := range c.Accounts(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

// Ping checks the panel answers an authenticated request.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.listPage(ctx, 0, 1)
	return err
}

// DeleteAccount removes the account. An account that is already gone counts as deleted.
func (c *Client) DeleteAccount(ctx context.Context, acc Account) error {
	if acc.UUID == "" {
		return fmt.Errorf("delete %s: %w", acc.Username, &APIError{Op: "delete", Kind: ErrRejected, Err: errors.New("account has no uuid")})
	}

	err := c.do(ctx, "delete", http.MethodDelete, "/api/users/"+url.PathEscape(acc.UUID), nil, nil)
	if errors.Is(err, ErrNotFound) {
		c.log.Info("account already gone", zap.String("username", acc.Username), zap.String("uuid", acc.UUID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", acc.Username, err)
	}
	return nil
}

// SubscriptionLink finds the subscription URL of acc, trying the fields and endpoints
// different panel versions expose. ok is false when nothing produced a link.
func (c *Client) SubscriptionLink(ctx context.Context, acc Account) (link string, ok bool) {
	if acc.SubscriptionURL != "" {
		return acc.SubscriptionURL, true
	}

	lookups := []struct {
		key  string
		path string
	}{
		{key: acc.UUID, path: "/api/users/"},
		{key: acc.ShortUUID, path: "/api/users/by-short-uuid/"},
	}
	for _, lookup := range lookups {
		if lookup.key == "" {
			continue
		}
		var dto userDTO
		if err := c.do(ctx, "get", http.MethodGet, lookup.path+url.PathEscape(lookup.key), nil, &dto); err != nil {
			c.log.Debug("subscription lookup failed", zap.String("username", acc.Username), zap.String("path", lookup.path), zap.Error(err))
			continue
		}
		if link := dto.link(); link != "" {
			return link, true
		}
		if acc.ShortUUID == "" {
			acc.ShortUUID = dto.ShortUUID
		}
	}

	if acc.ShortUUID != "" {
		return c.baseURL + "/api/sub/" + url.PathEscape(acc.ShortUUID), true
	}

	c.log.Warn("no subscription link", zap.String("username", acc.Username))
	return "", false
}
