package main

import "testing"

func TestFormatListenURL(t *testing.T) {
	tests := []struct {
		addr string
		port int
		want string
	}{
		{"0.0.0.0", 2380, "http://0.0.0.0:2380"},
		{"127.0.0.1", 80, "http://127.0.0.1:80"},
		{"::1", 2380, "http://[::1]:2380"},
	}
	for _, tt := range tests {
		if got := formatListenURL(tt.addr, tt.port); got != tt.want {
			t.Errorf("formatListenURL(%q, %d) = %q, want %q", tt.addr, tt.port, got, tt.want)
		}
	}
}
