package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/operator-framework/wcsp/internal/config"
)

func TestNewRun(t *testing.T) {
	var buf bytes.Buffer
	c := config.Default()
	c.NodeLimit = 10

	ctx := NewRun(context.Background(), NewLogger(&buf, log.InfoLevel), c)

	id := Run(ctx)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, c, Config(ctx))

	Logger(ctx).Info("started")
	Logger(ctx).Debug("hidden")
	assert.True(t, strings.Contains(buf.String(), "run="+id.String()))
	assert.False(t, strings.Contains(buf.String(), "hidden"))
}

func TestEmptyContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, uuid.Nil, Run(ctx))
	assert.Equal(t, config.Default(), Config(ctx))
	assert.Equal(t, log.Default(), Logger(ctx))
}
