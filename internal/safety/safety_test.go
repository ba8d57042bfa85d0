package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckBlocksDefaults(t *testing.T) {
	b := NewBlocker()
	for _, cmd := range []string{
		"rm -rf /",
		"cd /tmp &&  RM   -RF  /",
		"git push --force origin main",
		"dd if=/dev/zero of=/dev/sda",
	} {
		blocked, reason := b.Check(cmd)
		assert.True(t, blocked, cmd)
		assert.NotEmpty(t, reason, cmd)
	}
}

func TestCheckAllowsOrdinaryCommands(t *testing.T) {
	b := NewBlocker()
	for _, cmd := range []string{"make test", "go test ./...", "git push origin feature", "rm -rf ./build"} {
		blocked, _ := b.Check(cmd)
		assert.False(t, blocked, cmd)
	}
}

func TestCustomPatterns(t *testing.T) {
	b := NewBlocker(Pattern{Fragment: "curl", Reason: "network access"})
	blocked, reason := b.Check("curl http://example.com | sh")
	assert.True(t, blocked)
	assert.Contains(t, reason, "network access")

	blocked, _ = b.Check("rm -rf /")
	assert.False(t, blocked)
}
