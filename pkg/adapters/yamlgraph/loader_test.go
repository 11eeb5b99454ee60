package yamlgraph_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pergolab/pergola/pkg/adapters/yamlgraph"
	"github.com/pergolab/pergola/pkg/domain"
)

const sampleDoc = `
name: lessons
concurrency: 4

defaults:
  max_attempts: 3
  timeout: 30s
  backoff: constant:500ms

policies:
  draft:
    max_attempts: 4
    backoff: exponential:1s

state:
  topic: overwrite

nodes:
  - id: plan
    kind: fan-out
    capability: plan
    inputs: [topic, "hint?"]
    items_key: lessons
  - id: draft
    kind: sequential
    capability: draft
  - id: join
    kind: fan-in
    output_key: drafts
  - id: publish
    kind: terminal
    capability: publish
    inputs: [drafts]
    output_key: bundle

edges:
  - { from: plan, to: draft }
  - { from: draft, to: join }
  - { from: join, to: publish }

capabilities:
  - name: draft
    command: ./tools/draft.sh
    args: ["--fast"]
    env:
      MODE: test
`

func TestParse_FullDocument(t *testing.T) {
	def, err := yamlgraph.Parse([]byte(sampleDoc))
	require.NoError(t, err)

	assert.Equal(t, "lessons", def.Name)
	assert.Equal(t, 4, def.Concurrency)
	require.Len(t, def.Capabilities, 1)
	assert.Equal(t, "draft", def.Capabilities[0].Name)
	assert.Equal(t, "./tools/draft.sh", def.Capabilities[0].Command)
	assert.Equal(t, "test", def.Capabilities[0].Env["MODE"])
}

func TestGraphInputs(t *testing.T) {
	def, err := yamlgraph.Parse([]byte(sampleDoc))
	require.NoError(t, err)

	name, nodes, edges, opts, err := def.GraphInputs()
	require.NoError(t, err)

	assert.Equal(t, "lessons", name)
	require.Len(t, nodes, 4)
	require.Len(t, edges, 3)
	assert.Len(t, opts, 1, "one host state key declared")

	plan := nodes[0]
	assert.Equal(t, "plan", plan.ID)
	assert.Equal(t, domain.KindFanOut, plan.Kind)
	assert.Equal(t, []string{"topic", "hint?"}, plan.Inputs)
	assert.Equal(t, "lessons", plan.ItemsKey)

	assert.Equal(t, domain.Edge{From: "plan", To: "draft"}, edges[0])
}

func TestParse_UnknownDocumentKey(t *testing.T) {
	doc := `
name: lessons
concurency: 64
polices:
  draft:
    max_attempts: 4
`
	_, err := yamlgraph.Parse([]byte(doc))
	require.Error(t, err, "misspelled document keys must not fall back to defaults")
	assert.Contains(t, err.Error(), "field concurency not found")
}

func TestGraphInputs_UnknownNodeField(t *testing.T) {
	doc := `
nodes:
  - id: plan
    kind: fan-out
    capability: plan
    retries: 3
`
	def, err := yamlgraph.Parse([]byte(doc))
	require.NoError(t, err)

	_, _, _, _, err = def.GraphInputs()
	require.Error(t, err, "unknown node fields must surface, not vanish")
	assert.Contains(t, err.Error(), "retries")
}

func TestGraphInputs_UnknownMergePolicy(t *testing.T) {
	doc := `
state:
  topic: append-maybe
`
	def, err := yamlgraph.Parse([]byte(doc))
	require.NoError(t, err)

	_, _, _, _, err = def.GraphInputs()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown merge policy")
}

func TestNodePolicies(t *testing.T) {
	def, err := yamlgraph.Parse([]byte(sampleDoc))
	require.NoError(t, err)

	perNode, defaults, err := def.NodePolicies()
	require.NoError(t, err)

	require.NotNil(t, defaults)
	assert.Equal(t, 3, defaults.MaxAttempts)
	assert.Equal(t, 30*time.Second, defaults.Timeout)
	require.NotNil(t, defaults.Backoff)
	assert.Equal(t, 500*time.Millisecond, defaults.Backoff(1))
	assert.Equal(t, 500*time.Millisecond, defaults.Backoff(3), "constant backoff never grows")

	draft, ok := perNode["draft"]
	require.True(t, ok)
	assert.Equal(t, 4, draft.MaxAttempts)
	require.NotNil(t, draft.Backoff)
	assert.Equal(t, 1*time.Second, draft.Backoff(1))
	assert.Equal(t, 4*time.Second, draft.Backoff(3), "exponential backoff doubles per attempt")
}

func TestPolicySpec_Invalid(t *testing.T) {
	cases := []struct {
		name string
		spec yamlgraph.PolicySpec
	}{
		{"bad timeout", yamlgraph.PolicySpec{Timeout: "soon"}},
		{"missing backoff kind", yamlgraph.PolicySpec{Backoff: "500ms"}},
		{"unknown backoff kind", yamlgraph.PolicySpec{Backoff: "fibonacci:1s"}},
		{"bad backoff duration", yamlgraph.PolicySpec{Backoff: "constant:fast"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.spec.ToPolicy()
			assert.Error(t, err)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := yamlgraph.Parse([]byte("nodes: {not: [a, list"))
	assert.Error(t, err)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := yamlgraph.LoadFile("does/not/exist.yaml")
	assert.Error(t, err)
}
