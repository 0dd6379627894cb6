package serve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/leafnet-go/internal/conf"
)

func TestModelDir(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{Models: map[string]conf.ModelSettings{
		"species": {ModelPath: "/srv/models/species_model.tflite"},
		"health":  {ModelPath: "/opt/leaf/leaf_model.onnx"},
	}}
	assert.Equal(t, "/opt/leaf", modelDir(settings), "first slot in name order")
	assert.Equal(t, ".", modelDir(&conf.Settings{}))
}

func TestCommandFlags(t *testing.T) {
	t.Parallel()

	cmd := Command(&conf.Settings{}, nil)
	require.NotNil(t, cmd.Flags().Lookup("host"))

	port := cmd.Flags().Lookup("port")
	require.NotNil(t, port)
	assert.Equal(t, "p", port.Shorthand)
	assert.Equal(t, "5000", port.DefValue)
}
