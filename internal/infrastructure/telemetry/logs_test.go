package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type collectingProcessor struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (p *collectingProcessor) OnEmit(_ context.Context, r *sdklog.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, r.Clone())
	return nil
}

func (p *collectingProcessor) Enabled(context.Context, sdklog.EnabledParameters) bool { return true }
func (p *collectingProcessor) Shutdown(context.Context) error                          { return nil }
func (p *collectingProcessor) ForceFlush(context.Context) error                        { return nil }

func (p *collectingProcessor) bodies() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.records))
	for i, r := range p.records {
		out[i] = r.Body().AsString()
	}
	return out
}

func TestLoggerProvider_Bridge(t *testing.T) {
	processor := &collectingProcessor{}
	lp := newLoggerProviderWith("ampairs-test", processor)
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	core, local := observer.New(zapcore.InfoLevel)
	log := lp.Bridge(zap.New(core))

	log.Debug("dropped everywhere")
	log.Info("Datasource opened", zap.String("tenant", "acme-corp"))
	log.With(zap.String("tenant", "globex")).Warn("Datasource unavailable")

	assert.Equal(t, 2, local.Len(), "local output is unchanged")
	assert.Equal(t, []string{"Datasource opened", "Datasource unavailable"}, processor.bodies())
}

func TestLevelFilterCore(t *testing.T) {
	inner, _ := observer.New(zapcore.DebugLevel)
	c := &levelFilterCore{Core: inner, enabler: zapcore.WarnLevel}

	assert.False(t, c.Enabled(zapcore.InfoLevel))
	assert.True(t, c.Enabled(zapcore.ErrorLevel))

	with := c.With([]zapcore.Field{zap.String("k", "v")})
	require.IsType(t, &levelFilterCore{}, with)
	assert.False(t, with.Enabled(zapcore.InfoLevel))
}
