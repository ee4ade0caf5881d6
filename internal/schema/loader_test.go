package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDoc = `
enums:
  Status:
    values:
      0: UNSPECIFIED
      2: ACTIVE
structs:
  Settings:
    fields:
      - {name: enabled, type: bool}
resources:
  account:
    fields:
      - {name: id, type: int64}
      - {name: status, type: Status}
      - {name: settings, type: Settings}
      - {name: tags, type: string, repeated: true}
`

func TestLoad(t *testing.T) {
	reg, err := Load(strings.NewReader(testDoc))
	require.NoError(t, err)

	h, err := reg.Resource("account")
	require.NoError(t, err)
	account := reg.Type(h)
	require.Len(t, account.Fields, 4)

	// Declaration order is preserved.
	assert.Equal(t, "id", account.Fields[0].Name)
	assert.Equal(t, "tags", account.Fields[3].Name)
	assert.True(t, account.Fields[3].Repeated)

	status, ok := account.FieldByName("status")
	require.True(t, ok)
	assert.True(t, status.Enum)

	name, ok := reg.EnumValueName("Status", 2)
	require.True(t, ok)
	assert.Equal(t, "ACTIVE", name)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	_, err := Load(strings.NewReader("tables:\n  x:\n    fields: []\n"))
	require.Error(t, err)
}

func TestLoad_EmptyEnum(t *testing.T) {
	_, err := Load(strings.NewReader("enums:\n  E:\n    values: {}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no values")
}
