package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSystem(t *testing.T) {
	system, rest := SplitSystem([]Message{
		{Role: RoleSystem, Content: "be kind"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleAssistant, Content: "hello"},
	})

	assert.Equal(t, "be kind\n\nbe brief", system)
	assert.Equal(t, []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}}, rest)
}

func TestApply(t *testing.T) {
	o := Apply(Options{Temperature: 0.7, Model: "base"}, WithModel("override"), WithJSON(), WithMaxTokens(64))
	assert.Equal(t, Options{Temperature: 0.7, Model: "override", JSON: true, MaxTokens: 64}, o)
}
