package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteSubject(t *testing.T) {
	tests := []struct {
		name      string
		tenantID  string
		subject   string
		want      string
		wantOK    bool
	}{
		{"bare subject gets namespaced", "acme", "orders.created", "tenant.acme.orders.created", true},
		{"already namespaced to same tenant", "acme", "tenant.acme.orders.created", "tenant.acme.orders.created", true},
		{"namespaced to a different tenant is rejected", "acme", "tenant.globex.orders.created", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RewriteSubject(tt.tenantID, tt.subject)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestIsWildcard(t *testing.T) {
	assert.True(t, IsWildcard("tenant.acme.*"))
	assert.True(t, IsWildcard("tenant.acme.>"))
	assert.False(t, IsWildcard("tenant.acme.orders.created"))
	assert.False(t, IsWildcard(""))
}

func TestChannelSubject(t *testing.T) {
	assert.Equal(t, "tenant.acme.channel.general", ChannelSubject("acme", "general"))
}

func TestTopicPreviewSubject(t *testing.T) {
	assert.Equal(t, "tenant.acme.>", TopicPreviewSubject("acme"))
}
