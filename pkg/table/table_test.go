package table

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDescriptorSortsColumns(t *testing.T) {
	d := NewDescriptor("SALES", "ORDERS", []Column{
		{Ordinal: 3, Name: "AMOUNT"},
		{Ordinal: 1, Name: "ID"},
		{Ordinal: 2, Name: "UPDATED_AT"},
	})

	require.Equal(t, []string{"ID", "UPDATED_AT", "AMOUNT"}, d.ColumnNames())
	require.Equal(t, "SALES.ORDERS", d.QualifiedName())
	require.True(t, d.HasColumn("updated_at"))
	require.False(t, d.HasColumn("missing"))

	noSchema := NewDescriptor("", "ORDERS", nil)
	require.Equal(t, "ORDERS", noSchema.QualifiedName())
}

func TestReplicationStateActive(t *testing.T) {
	var nilState *ReplicationState
	require.False(t, nilState.Active())
	require.False(t, (&ReplicationState{Key: "UPDATED_AT"}).Active())
	require.True(t, (&ReplicationState{Key: "UPDATED_AT", Watermark: "2023-01-01"}).Active())
}
