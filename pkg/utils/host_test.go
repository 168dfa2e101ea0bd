package utils

import "testing"

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{
			name: "plain host",
			host: "example.com",
			want: "example.com",
		},
		{
			name: "www and case",
			host: "WWW.Example.COM",
			want: "example.com",
		},
		{
			name: "with port number",
			host: "example.com:8080",
			want: "example.com",
		},
		{
			name: "trailing dot",
			host: "example.com.",
			want: "example.com",
		},
		{
			name: "ipv6 with port",
			host: "[::1]:8080",
			want: "::1",
		},
		{
			name: "subdomain kept",
			host: "blog.example.com",
			want: "blog.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeHost(tt.host)
			if got != tt.want {
				t.Errorf("NormalizeHost() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSameHost(t *testing.T) {
	if !SameHost("www.example.com", "example.com:443") {
		t.Error("SameHost() = false, want true")
	}
	if SameHost("other.com", "example.com") {
		t.Error("SameHost() = true, want false")
	}
	if SameHost("", "") {
		t.Error("SameHost() of empty hosts = true, want false")
	}
}
