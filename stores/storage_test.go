package stores

import (
	"certificate-server/config"
	"certificate-server/core"
	"context"
	"path/filepath"
	"testing"
)

func TestGetStore(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		name         string
		cfg          *config.Config
		wantRegistry bool
	}{
		{"memory", &config.Config{StorageType: "memory"}, true},
		{"default", &config.Config{}, true},
		{"filesystem", &config.Config{StorageType: "filesystem", LocalStoragePath: t.TempDir()}, false},
		{"sqlite", &config.Config{StorageType: "sqlite", DataSourceName: filepath.Join(t.TempDir(), "s.db")}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, err := GetStore(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("GetStore() failed: %v", err)
			}
			if _, ok := store.(core.RoomRegistry); ok != tc.wantRegistry {
				t.Errorf("RoomRegistry mismatch: got %v, want %v", ok, tc.wantRegistry)
			}
			id, err := store.Create(ctx, &core.Template{Name: tc.name, Orientation: core.OrientationLandscape})
			if err != nil {
				t.Fatalf("Create() failed: %v", err)
			}
			if _, err := store.Get(ctx, id); err != nil {
				t.Errorf("Get() failed: %v", err)
			}
		})
	}
}
