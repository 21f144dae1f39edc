package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("HABIT_STORE", "")
	t.Setenv("AUTH_PROVIDER", "")
	t.Setenv("LANDING_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3333", cfg.Port)
	assert.Equal(t, StoreFirestore, cfg.HabitStore)
	assert.Equal(t, AuthFirebase, cfg.AuthProvider)
	assert.Equal(t, "/landingpage", cfg.LandingPath)
	assert.True(t, cfg.NeedsFirebase())
}

func TestLoadAllowedOrigins(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", " https://app.example , ,https://admin.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://app.example", "https://admin.example"}, cfg.AllowedOrigins)
}

func TestLoadMemoryWithLocalAuth(t *testing.T) {
	t.Setenv("HABIT_STORE", "Memory")
	t.Setenv("AUTH_PROVIDER", "local")
	t.Setenv("LOCAL_AUTH_SECRET", "0123456789abcdef")
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.HabitStore)
	assert.False(t, cfg.NeedsFirebase())
	assert.True(t, cfg.IsDevelopment())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"postgres without url", Config{HabitStore: StorePostgres, AuthProvider: AuthFirebase}, true},
		{"postgres with url", Config{HabitStore: StorePostgres, DatabaseURL: "postgres://x", AuthProvider: AuthFirebase}, false},
		{"unknown store", Config{HabitStore: "mongo", AuthProvider: AuthFirebase}, true},
		{"clerk without key", Config{HabitStore: StoreMemory, AuthProvider: AuthClerk}, true},
		{"local short secret", Config{HabitStore: StoreMemory, AuthProvider: AuthLocal, LocalAuthSecret: "short"}, true},
		{"unknown auth", Config{HabitStore: StoreMemory, AuthProvider: "saml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
