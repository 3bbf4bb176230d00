// SPDX-License-Identifier: MIT

package token

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
)

// Claims is the payload embedded in every ticket. The registered claims
// carry issuance and expiry; the custom fields bind the ticket to one
// visitor's admission decision.
type Claims struct {
	VisitorID      string          `json:"vid"`
	ActionID       string          `json:"aid"`
	ActionGroupID  string          `json:"gid"`
	DestinationURL string          `json:"dst,omitempty"`
	Status         core.WaitStatus `json:"sts"`
	jwt.RegisteredClaims
}

// Ticket pairs the signed wire value with its decoded claims.
type Ticket struct {
	Value  string
	Claims Claims
}
