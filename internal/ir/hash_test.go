package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupNodeIDDeterministic(t *testing.T) {
	a := GroupNodeID("step-1", DirectionOutput, TypeFile, true)
	b := GroupNodeID("step-1", DirectionOutput, TypeFile, true)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "output-group:"))
	assert.Len(t, strings.TrimPrefix(a, "output-group:"), groupIDLength)
}

func TestGroupNodeIDDistinguishesInputs(t *testing.T) {
	base := GroupNodeID("step-1", DirectionOutput, TypeFile, true)

	assert.NotEqual(t, base, GroupNodeID("step-2", DirectionOutput, TypeFile, true))
	assert.NotEqual(t, base, GroupNodeID("step-1", DirectionOutput, TypeReferenceFile, true))
	assert.NotEqual(t, base, GroupNodeID("step-1", DirectionOutput, TypeFile, false))

	in := GroupNodeID("step-1", DirectionInput, TypeFile, true)
	assert.True(t, strings.HasPrefix(in, "input-group:"))
}

func TestGraphHashIgnoresOrder(t *testing.T) {
	g1 := Graph{
		Nodes: []Node{{ID: "a"}, {ID: "b"}},
		Edges: []Edge{{Source: "a", Target: "b"}},
	}
	g2 := Graph{
		Nodes: []Node{{ID: "b"}, {ID: "a"}},
		Edges: []Edge{{Source: "a", Target: "b"}},
	}

	h1, err := GraphHash(g1)
	require.NoError(t, err)
	assert.Equal(t, h1, MustGraphHash(g2))
	assert.Len(t, h1, 64)
}

func TestGraphHashDiffersOnEdges(t *testing.T) {
	g1 := Graph{Nodes: []Node{{ID: "a"}, {ID: "b"}}, Edges: []Edge{{Source: "a", Target: "b"}}}
	g2 := Graph{Nodes: []Node{{ID: "a"}, {ID: "b"}}, Edges: []Edge{{Source: "b", Target: "a"}}}
	assert.NotEqual(t, MustGraphHash(g1), MustGraphHash(g2))
}

func TestPayloadHashDomainSeparated(t *testing.T) {
	assert.NotEqual(t, PayloadHash([]byte("x")), hashWithDomain(DomainGraph, []byte("x")))
	assert.Equal(t, PayloadHash([]byte("x")), PayloadHash([]byte("x")))
}

func TestResolvedIdentity(t *testing.T) {
	var nilResolved *Resolved
	assert.Equal(t, "", nilResolved.Identity())
	assert.Equal(t, "F123", (&Resolved{ID: "/files/x/", Accession: "F123"}).Identity())
	assert.Equal(t, "/files/x/", (&Resolved{ID: "/files/x/"}).Identity())
}

func TestMalformedStepGraphError(t *testing.T) {
	err := NewMalformed(MalformedUnknownStep, "s1", "t1", "source references unknown step \"s9\"")
	assert.True(t, IsMalformed(err))
	assert.Contains(t, err.Error(), "UNKNOWN_STEP")
	assert.Contains(t, err.Error(), "step=s1")

	multi := &MalformedStepGraphError{Problems: []Problem{
		{Code: MalformedDuplicateStep, StepID: "a", Message: "duplicate step id"},
		{Code: MalformedMissingID, Message: "step without id"},
	}}
	assert.Contains(t, multi.Error(), "2 problems")
}
