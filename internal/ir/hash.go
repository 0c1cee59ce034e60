package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainGroup   = "provgraph/group/v1"
	DomainGraph   = "provgraph/graph/v1"
	DomainPayload = "provgraph/payload/v1"
)

// groupIDLength is the number of hex characters kept in group node ids.
const groupIDLength = 16

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// GroupNodeID derives the id of a collapsed group node from the owning
// step, direction, terminal type and in-path flag. Repeated builds of the
// same steps therefore produce the same group ids.
func GroupNodeID(stepID string, dir Direction, termType string, inPath bool) string {
	kind := NodeOutputGroup
	if dir == DirectionInput {
		kind = NodeInputGroup
	}
	obj := map[string]any{
		"step":      stepID,
		"direction": string(dir),
		"type":      termType,
		"in_path":   inPath,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		// Only strings and bools above; canonical marshaling cannot fail.
		panic(fmt.Sprintf("GroupNodeID: %v", err))
	}
	return string(kind) + ":" + hashWithDomain(DomainGroup, canonical)[:groupIDLength]
}

// GraphHash computes a content hash over the node and edge id sets of g.
// Two graphs with equal hashes expose identical ids to the renderer.
func GraphHash(g Graph) (string, error) {
	nodes := g.NodeIDs()
	edges := g.EdgeKeys()
	obj := map[string]any{
		"nodes": nodes,
		"edges": edges,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("GraphHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainGraph, canonical), nil
}

// PayloadHash computes a content hash over a raw step payload.
func PayloadHash(payload []byte) string {
	return hashWithDomain(DomainPayload, payload)
}

// MustGraphHash is like GraphHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustGraphHash(g Graph) string {
	h, err := GraphHash(g)
	if err != nil {
		panic(err)
	}
	return h
}
