// Package types defines the shared domain model for the shopbridge service:
// resolved orders, product packages, account variants, and the error and
// interface contracts used across packages.
package types

import (
	"time"

	"github.com/google/uuid"
)

// PlayerPlaceholder is the token in a command template that is replaced with
// the resolved account identity before dispatch.
const PlayerPlaceholder = "%player%"

// Account variant tags. The storefront checkout form lets buyers declare
// which client type their account belongs to. Java is the default when no
// tag is present; Bedrock identities are prefixed with "!" so the
// game-server side can route them through its offline-account bridge.
const (
	AccountVariantJava    = "Java"
	AccountVariantBedrock = "Bedrock"
)

// BedrockPrefix marks a Bedrock (non-primary) account identity. An identity
// already carrying the prefix is never double-prefixed, and an identity that
// arrives pre-prefixed from the payload keeps it.
const BedrockPrefix = "!"

// ResolvedOrder is the immutable record produced for each successfully
// processed line item. It is created only after a non-empty account identity
// and a non-empty item name have been resolved, and is handed to the
// deduplication store and the notification sink exactly once.
type ResolvedOrder struct {
	// ID is an opaque unique token generated at processing time.
	ID string `json:"id"`
	// AccountIdentity is the resolved end-user account name, including the
	// Bedrock prefix when the account variant tag requires it.
	AccountIdentity string `json:"account_identity"`
	// ItemName is the purchased product's display name.
	ItemName string `json:"item_name"`
	// ExternalOrderID is the upstream storefront's order identifier. The
	// durable dedup check keys on this value.
	ExternalOrderID string `json:"external_order_id"`
	// ProcessedAt records when the pipeline resolved this line item.
	ProcessedAt time.Time `json:"processed_at"`
}

// NewResolvedOrder constructs a ResolvedOrder with a fresh unique ID.
func NewResolvedOrder(identity, itemName, externalOrderID string, processedAt time.Time) ResolvedOrder {
	return ResolvedOrder{
		ID:              uuid.New().String(),
		AccountIdentity: identity,
		ItemName:        itemName,
		ExternalOrderID: externalOrderID,
		ProcessedAt:     processedAt,
	}
}

// Package is the configured action set for one product: an ordered list of
// command templates executed once per purchased unit, in list order.
type Package struct {
	Commands []string `json:"commands" validate:"required,min=1,dive,required"`
}

// ProductMapping associates product display names with their packages.
// Keys are compared case-sensitively; there is no fuzzy matching.
type ProductMapping map[string]Package
