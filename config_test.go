package gatekit

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestValidateRejectsBadWindowRules(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name: "missing kind",
			mutate: func(c *Config) {
				c.Recovery.RequestWindows[0].Kind = ""
			},
			want: "kind",
		},
		{
			name: "zero points",
			mutate: func(c *Config) {
				c.Recovery.RequestWindows[0].Points = 0
			},
			want: "points",
		},
		{
			name: "negative duration",
			mutate: func(c *Config) {
				c.Recovery.ConfirmWindows[0].Window = -time.Second
			},
			want: "duration",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateRejectsBadOTP(t *testing.T) {
	cfg := testConfig()
	cfg.OTP.Digits = 3
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of short codes")
	}

	cfg = testConfig()
	cfg.OTP.Digits = 11
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of oversized codes")
	}

	cfg = testConfig()
	cfg.OTP.Attempts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of zero attempt budget")
	}
}

func TestValidateRequiresSealKey(t *testing.T) {
	cfg := testConfig()
	cfg.Security.SealKey = []byte("short")
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected rejection of short seal key")
	}
}

func TestCloneConfigIsolatesCallerSlices(t *testing.T) {
	cfg := testConfig()
	cfg.Tokens = testTokensConfig()

	clone := cloneConfig(cfg)

	cfg.Recovery.RequestWindows[0].Points = 99
	cfg.Security.SealKey[0] = 0xFF
	cfg.Tokens.Access.Secret[0] = 0xFF

	if clone.Recovery.RequestWindows[0].Points == 99 {
		t.Fatal("window rules not cloned")
	}
	if clone.Security.SealKey[0] == 0xFF {
		t.Fatal("seal key not cloned")
	}
	if clone.Tokens.Access.Secret[0] == 0xFF {
		t.Fatal("token secret not cloned")
	}
}
