package version

import "testing"

// TestIsServerSupported checks the semver gate and its tolerance for
// servers that do not announce a version.
func TestIsServerSupported(t *testing.T) {
	testCases := []struct {
		name   string
		server string
		want   bool
	}{
		{
			name:   "equal to minimum",
			server: MinServerVersion,
			want:   true,
		},
		{
			name:   "newer",
			server: "1.4.2",
			want:   true,
		},
		{
			name:   "newer with v prefix",
			server: "v9.0.0",
			want:   true,
		},
		{
			name:   "older",
			server: "0.1.9",
			want:   false,
		},
		{
			name:   "missing header",
			server: "",
			want:   true,
		},
		{
			name:   "garbage",
			server: "not-a-version",
			want:   true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsServerSupported(tc.server); got != tc.want {
				t.Errorf("IsServerSupported(%q) = %v, want %v", tc.server, got, tc.want)
			}
		})
	}
}
