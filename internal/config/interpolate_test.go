package config

import "testing"

func TestInterpolate(t *testing.T) {
	env := map[string]string{
		"HOST":  "example.org",
		"EMPTY": "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cases := []struct {
		in   string
		want string
	}{
		{"server_name ${HOST};", "server_name example.org;"},
		{"server_name $HOST;", "server_name example.org;"},
		{"port: ${PORT:-8080}", "port: 8080"},
		{"host: ${HOST:-fallback}", "host: example.org"},
		// Set-but-empty falls back to the default, like the upstream tool.
		{"v: ${EMPTY:-x}", "v: x"},
		{"v: ${UNSET}", "v: "},
		{"price: $$5", "price: $5"},
		{"plain text", "plain text"},
	}
	for _, tc := range cases {
		if got := string(Interpolate([]byte(tc.in), lookup)); got != tc.want {
			t.Errorf("Interpolate(%q) = %q, expected %q", tc.in, got, tc.want)
		}
	}
}
