package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github/chapool/wallet-broker/internal/util"
)

func TestIsStructInitialized(t *testing.T) {
	type components struct {
		Name     string
		Optional *int `ready:"-"`
		Count    int
	}

	require := assert.New(t)
	require.NoError(util.IsStructInitialized(&components{Name: "broker", Count: 1}))
	require.EqualError(util.IsStructInitialized(&components{Name: "broker"}), "field Count is not initialized")
	require.Error(util.IsStructInitialized((*components)(nil)))
	require.Error(util.IsStructInitialized(42))
}
