package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
)

func TestSession_CountsAndLookup(t *testing.T) {
	s := NewSession("/plugins")
	require.NotEmpty(t, s.ID)
	assert.Equal(t, "/plugins", s.Root)

	warnedReport := &captypes.ValidationReport{}
	warnedReport.AddWarning("missing_returns", "symbol declares no return type", "x")

	s.Units = []*captypes.Unit{
		{ID: "a", State: captypes.StateLoaded},
		{ID: "b", State: captypes.StateLoaded, Report: warnedReport},
		{ID: "c", State: captypes.StateFailed},
	}

	loaded, warned, failed := s.Counts()
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 1, warned)
	assert.Equal(t, 1, failed)

	require.NotNil(t, s.Unit("b"))
	assert.Nil(t, s.Unit("zz"))

	reg := s.Registrable()
	require.Len(t, reg, 2)
	assert.Equal(t, "a", reg[0].ID)
	assert.Equal(t, "b", reg[1].ID)
}
