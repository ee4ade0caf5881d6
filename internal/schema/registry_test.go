package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportql/internal/domain"
)

func TestBuilder_LinksForwardReferences(t *testing.T) {
	// node references itself and tree, which is declared later.
	reg, err := NewBuilder().
		Struct("node",
			F("value", TypeInt64),
			F("left", "node"),
			F("tree", "tree"),
		).
		Resource("tree", F("root", "node")).
		Build()
	require.NoError(t, err)

	h, err := reg.Message("node")
	require.NoError(t, err)
	node := reg.Type(h)

	left, ok := node.FieldByName("left")
	require.True(t, ok)
	assert.Equal(t, h, left.Ref)

	tree, ok := node.FieldByName("tree")
	require.True(t, ok)
	assert.Equal(t, "tree", reg.Type(tree.Ref).Name)
}

func TestBuilder_UnknownReference(t *testing.T) {
	_, err := NewBuilder().
		Resource("r", F("x", "Missing")).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing")
}

func TestBuilder_DuplicateType(t *testing.T) {
	_, err := NewBuilder().
		Struct("a", F("x", TypeString)).
		Struct("a", F("y", TypeString)).
		Build()
	require.Error(t, err)
}

func TestRegistry_ResourceLookup(t *testing.T) {
	reg := TestRegistry()

	_, err := reg.Resource("campaign")
	require.NoError(t, err)

	// Structs are not query roots.
	_, err = reg.Resource("Campaign")
	var unknown *domain.UnknownResourceError
	require.ErrorAs(t, err, &unknown)

	_, err = reg.Resource("no_such_resource")
	require.ErrorAs(t, err, &unknown)
}

func TestRegistry_EnumValueName(t *testing.T) {
	reg := TestRegistry()

	name, ok := reg.EnumValueName("CampaignStatus", 2)
	require.True(t, ok)
	assert.Equal(t, "ENABLED", name)

	_, ok = reg.EnumValueName("CampaignStatus", 99)
	assert.False(t, ok)

	_, ok = reg.EnumValueName("Campaign", 2) // message, not enum
	assert.False(t, ok)
}

func TestRegistry_FieldMetadata(t *testing.T) {
	reg := TestRegistry()

	h, err := reg.Message("Campaign")
	require.NoError(t, err)
	campaign := reg.Type(h)

	status, ok := campaign.FieldByName("status")
	require.True(t, ok)
	assert.True(t, status.Enum)
	assert.False(t, status.Repeated)

	caps, ok := campaign.FieldByName("frequency_caps")
	require.True(t, ok)
	assert.True(t, caps.Repeated)
	assert.False(t, caps.Enum)
	assert.Equal(t, "FrequencyCap", reg.Type(caps.Ref).Name)

	labels, ok := campaign.FieldByName("labels")
	require.True(t, ok)
	assert.True(t, labels.Repeated)
	assert.Equal(t, TypeString, labels.Primitive)
}
