package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecofemme/gst-tally/internal/config"
)

func processors(names ...string) *config.MainConfig {
	cfg := &config.MainConfig{}
	for _, n := range names {
		p := config.ProcessorConfig{Name: n, Prefix: n + "_"}
		config.ApplyProcessorDefaults(&p)
		cfg.Processors = append(cfg.Processors, p)
	}
	return cfg
}

func withProcessorFlag(t *testing.T, value string) {
	t.Helper()
	previous := processorName
	processorName = value
	t.Cleanup(func() { processorName = previous })
}

func TestStatementProcessor(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.MainConfig
		flag    string
		path    string
		want    string
		wantErr string
	}{
		{"flag wins over prefix", processors("paypal", "stripe"), "Stripe", "/data/paypal_apr.csv", "stripe", ""},
		{"unknown flag", processors("paypal"), "razorpay", "/data/paypal_apr.csv", "", `unknown processor "razorpay"`},
		{"prefix match is case-insensitive", processors("paypal", "stripe"), "", "/data/STRIPE_apr.CSV", "stripe", ""},
		{"prefix checks the base name only", processors("paypal", "stripe"), "", "/stripe_/paypal_apr.csv", "paypal", ""},
		{"single processor fallback", processors("paypal"), "", "/data/Download.csv", "paypal", ""},
		{"no match among several", processors("paypal", "stripe"), "", "/data/Download.csv", "", "pass --processor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withProcessorFlag(t, tt.flag)

			p, err := statementProcessor(tt.cfg, tt.path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name)
		})
	}
}
