package remnawave

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Asort97/promoBot/clients/metrics"
	promoname "github.com/Asort97/promoBot/clients/promoName"
)

// UnlimitedExpiry is sent as the expiry of promo accounts: they never expire by time.
var UnlimitedExpiry = time.Date(2099, time.December, 31, 23, 59, 59, 0, time.UTC)

type createRequest struct {
	Username          string
	TrafficLimitBytes int64
	ExpireAt          string
	InboundUUIDs      []string
	InboundNumbers    []int
}

// createShape is one payload layout the panel has accepted in some version.
type createShape struct {
	name  string
	build func(createRequest) any
}

type fullCreateBody struct {
	Username             string   `json:"username"`
	ExpireAt             string   `json:"expireAt"`
	TrafficLimitBytes    int64    `json:"trafficLimitBytes"`
	TrafficLimitStrategy string   `json:"trafficLimitStrategy"`
	Status               string   `json:"status"`
	ActivateAllInbounds  bool     `json:"activateAllInbounds"`
	ActiveUserInbounds   []string `json:"activeUserInbounds,omitempty"`
	ActiveInbounds       []int    `json:"activeInbounds,omitempty"`
}

type camelQuotaBody struct {
	Username          string `json:"username"`
	ExpireAt          string `json:"expireAt"`
	TrafficLimitBytes int64  `json:"trafficLimitBytes"`
}

type snakeQuotaBody struct {
	Username          string `json:"username"`
	ExpireAt          string `json:"expire_at"`
	TrafficLimitBytes int64  `json:"traffic_limit_bytes"`
}

// createLadder is tried in order; only a rejected payload moves to the next shape.
var createLadder = []createShape{
	{
		name: "full",
		build: func(r createRequest) any {
			return fullCreateBody{
				Username:             r.Username,
				ExpireAt:             r.ExpireAt,
				TrafficLimitBytes:    r.TrafficLimitBytes,
				TrafficLimitStrategy: "NO_RESET",
				Status:               StatusActive,
				ActivateAllInbounds:  true,
				ActiveUserInbounds:   r.InboundUUIDs,
				ActiveInbounds:       r.InboundNumbers,
			}
		},
	},
	{
		name: "camelQuota",
		build: func(r createRequest) any {
			return camelQuotaBody{Username: r.Username, ExpireAt: r.ExpireAt, TrafficLimitBytes: r.TrafficLimitBytes}
		},
	},
	{
		name: "snakeQuota",
		build: func(r createRequest) any {
			return snakeQuotaBody{Username: r.Username, ExpireAt: r.ExpireAt, TrafficLimitBytes: r.TrafficLimitBytes}
		},
	},
	{
		name: "untyped",
		build: func(r createRequest) any {
			return map[string]any{
				"username":            r.Username,
				"expireAt":            r.ExpireAt,
				"expire_at":           r.ExpireAt,
				"trafficLimitBytes":   r.TrafficLimitBytes,
				"traffic_limit_bytes": r.TrafficLimitBytes,
			}
		},
	},
}

// CreateAccount creates one promo account for tag capped at trafficLimitBytes.
// Which payload shape the panel accepted is not reported to the caller.
func (c *Client) CreateAccount(ctx context.Context, tag string, trafficLimitBytes int64) (Account, error) {
	if err := promoname.ValidateTag(tag); err != nil {
		return Account{}, err
	}
	if trafficLimitBytes <= 0 {
		// zero means unlimited on the panel
		return Account{}, fmt.Errorf("create: traffic limit must be positive, got %d", trafficLimitBytes)
	}

	req := createRequest{
		Username:          promoname.Encode(c.prefix, tag, promoname.NewSuffix()),
		TrafficLimitBytes: trafficLimitBytes,
		ExpireAt:          UnlimitedExpiry.Format(time.RFC3339),
		InboundUUIDs:      c.inboundUUIDs,
		InboundNumbers:    c.inboundNumbers,
	}

	var lastErr error
	for _, shape := range c.shapes {
		var dto userDTO
		err := c.do(ctx, "create", http.MethodPost, "/api/users", shape.build(req), &dto)
		if errors.Is(err, errDecode) {
			// the panel accepted the payload, only its answer is unreadable
			c.log.Warn("created account with unreadable response", zap.String("username", req.Username), zap.Error(err))
			dto, err = userDTO{Username: req.Username}, nil
		}
		if err == nil {
			metrics.RecordShape(shape.name)
			acc := dto.account(c.prefix)
			if acc.Username == "" {
				acc.Username = req.Username
			}
			if acc.Tag == "" {
				acc.Tag = tag
			}
			if acc.TrafficLimitBytes == 0 {
				acc.TrafficLimitBytes = trafficLimitBytes
			}
			c.log.Info("account created",
				zap.String("username", acc.Username),
				zap.String("uuid", acc.UUID),
				zap.String("shape", shape.name),
				zap.Int64("traffic_limit_bytes", trafficLimitBytes),
			)
			return acc, nil
		}

		lastErr = err
		if !errors.Is(err, ErrRejected) {
			return Account{}, fmt.Errorf("create %s: %w", req.Username, err)
		}
		c.log.Warn("payload shape rejected", zap.String("username", req.Username), zap.String("shape", shape.name), zap.Error(err))
	}

	if lastErr == nil {
		return Account{}, fmt.Errorf("create %s: no payload shapes configured", req.Username)
	}
	return Account{}, fmt.Errorf("create %s: all %d payload shapes rejected: %w", req.Username, len(c.shapes), lastErr)
}

// splitInbounds separates UUID inbounds from legacy numeric ones.
func splitInbounds(ids []string) (uuids []string, numbers []int) {
	for _, id := range ids {
		if parsed, err := uuid.Parse(id); err == nil {
			uuids = append(uuids, parsed.String())
			continue
		}
		if n, err := strconv.Atoi(id); err == nil {
			numbers = append(numbers, n)
		}
	}
	return uuids, numbers
}
