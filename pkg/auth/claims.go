package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/varunnair-io/distriflow-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID        uuid.UUID
	DistributorID *uuid.UUID
	Role          enums.ActorRole
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID        uuid.UUID       `json:"user_id"`
	DistributorID *uuid.UUID      `json:"distributor_id,omitempty"`
	Role          enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
